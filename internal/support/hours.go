package support

import (
	"fmt"
	"time"

	"market-chat/internal/config"
	"market-chat/internal/models"
)

// Hours is the daily window during which operators answer. A window whose
// close hour is before its open hour runs past midnight; equal hours mean
// never open.
type Hours struct {
	loc   *time.Location
	open  int
	close int
}

func NewHours(cfg config.SupportConfig) (Hours, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Hours{}, fmt.Errorf("load support timezone: %w", err)
	}
	return Hours{loc: loc, open: cfg.OpenHour, close: cfg.CloseHour}, nil
}

// IsOpen reports whether now falls inside the window, evaluated in the
// configured timezone.
func (h Hours) IsOpen(now time.Time) bool {
	if h.open == h.close {
		return false
	}
	hour := now.In(h.loc).Hour()
	if h.open < h.close {
		return hour >= h.open && hour < h.close
	}
	return hour >= h.open || hour < h.close
}

// StatusAt builds the widget header for now.
func StatusAt(cfg config.SupportConfig, h Hours, now time.Time) models.SupportStatus {
	if !cfg.Enabled {
		return models.SupportStatus{Enabled: false, Online: false, Message: cfg.OfflineText}
	}
	if h.IsOpen(now) {
		return models.SupportStatus{Enabled: true, Online: true, Message: cfg.Greeting}
	}
	return models.SupportStatus{Enabled: true, Online: false, Message: cfg.OfflineText}
}
