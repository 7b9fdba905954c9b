package poller

import (
	"context"
	"strings"
	"time"

	"market-chat/internal/apperrors"
	"market-chat/internal/config"
	"market-chat/internal/models"
	"market-chat/internal/support"
)

// SupportSource is the signed-in user's support thread.
type SupportSource interface {
	SupportConfig(ctx context.Context) (config.SupportConfig, error)
	SupportMessages(ctx context.Context) ([]models.SupportMessage, error)
	SendSupport(ctx context.Context, body string) (models.SupportMessage, error)
	MarkSupportRead(ctx context.Context) (int64, error)
}

type SupportView struct {
	Open     bool
	Status   models.SupportStatus
	Messages []models.SupportMessage
	Draft    string
	Sending  bool
	Notice   string
}

// SupportWidget polls the single support thread. Business hours only change
// the status line and are computed on every View call.
type SupportWidget struct {
	loop

	src      SupportSource
	onChange func()

	open    bool
	draft   string
	sending bool

	cfg      *config.SupportConfig
	hours    support.Hours
	messages scope
	msgs     []models.SupportMessage
}

func NewSupport(src SupportSource, opts Options, onChange func()) *SupportWidget {
	return &SupportWidget{loop: loop{opts: opts.withDefaults()}, src: src, onChange: onChange}
}

// Open starts polling the thread. The thread is marked read once per open.
func (w *SupportWidget) Open() {
	w.mu.Lock()
	if w.open {
		w.mu.Unlock()
		return
	}
	w.open = true
	w.restartLocked(true, w.run)
	w.mu.Unlock()
	w.notify()
}

// Close stops polling. The draft survives so reopening keeps it.
func (w *SupportWidget) Close() {
	w.mu.Lock()
	w.open = false
	w.restartLocked(false, nil)
	w.mu.Unlock()
	w.notify()
}

func (w *SupportWidget) SetDraft(text string) {
	w.mu.Lock()
	w.draft = text
	w.mu.Unlock()
}

func (w *SupportWidget) DismissNotice() {
	w.loop.DismissNotice()
	w.notify()
}

// View renders the widget at now.
func (w *SupportWidget) View(now time.Time) SupportView {
	w.mu.Lock()
	defer w.mu.Unlock()
	view := SupportView{
		Open:     w.open,
		Messages: append([]models.SupportMessage(nil), w.msgs...),
		Draft:    w.draft,
		Sending:  w.sending,
		Notice:   w.notice,
	}
	if w.cfg != nil {
		view.Status = support.StatusAt(*w.cfg, w.hours, now)
	}
	return view
}

// Send posts the draft. The draft is cleared only on success, and a call
// made while another send is in flight returns ErrSendInFlight.
func (w *SupportWidget) Send(ctx context.Context) (models.SupportMessage, error) {
	w.mu.Lock()
	if !w.open {
		w.mu.Unlock()
		return models.SupportMessage{}, ErrNoConversation
	}
	if w.sending {
		w.mu.Unlock()
		return models.SupportMessage{}, ErrSendInFlight
	}
	draft := w.draft
	body := strings.TrimSpace(draft)
	if body == "" {
		w.mu.Unlock()
		return models.SupportMessage{}, apperrors.ErrEmptyMessage
	}
	sess := w.sess
	w.sending = true
	w.mu.Unlock()
	w.notify()

	msg, err := w.src.SendSupport(ctx, body)

	w.mu.Lock()
	w.sending = false
	if err != nil {
		if w.currentLocked(sess.epoch) {
			w.notice = "Message not sent: " + apperrors.From(err).Message
			w.noticeTransient = false
		}
		w.mu.Unlock()
		w.notify()
		return models.SupportMessage{}, err
	}
	if w.draft == draft {
		w.draft = ""
	}
	current := w.currentLocked(sess.epoch)
	w.mu.Unlock()
	w.notify()

	if current {
		go w.refresh(sess)
	}
	return msg, nil
}

func (w *SupportWidget) run(s *session) {
	go func() {
		w.loadConfig(s)
		w.refresh(s)
		if _, err := w.src.MarkSupportRead(s.ctx); err != nil {
			w.mu.Lock()
			changed := w.currentLocked(s.epoch) && w.failLocked(err)
			w.mu.Unlock()
			if changed {
				w.notify()
			}
		}
	}()

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for w.tick(s, ticker) {
		go w.refresh(s)
	}
}

func (w *SupportWidget) loadConfig(s *session) {
	w.mu.Lock()
	loaded := w.cfg != nil
	w.mu.Unlock()
	if loaded {
		return
	}

	cfg, err := w.src.SupportConfig(s.ctx)
	if err != nil {
		w.mu.Lock()
		changed := w.currentLocked(s.epoch) && w.failLocked(err)
		w.mu.Unlock()
		if changed {
			w.notify()
		}
		return
	}
	hours, err := support.NewHours(cfg)
	if err != nil {
		// Unknown zone on the server side; fall back to UTC for the status line.
		cfg.Timezone = "UTC"
		hours, _ = support.NewHours(cfg)
	}

	w.mu.Lock()
	w.cfg = &cfg
	w.hours = hours
	w.mu.Unlock()
	w.notify()
}

func (w *SupportWidget) refresh(s *session) {
	w.mu.Lock()
	if !w.currentLocked(s.epoch) {
		w.mu.Unlock()
		return
	}
	seq := w.messages.next()
	w.mu.Unlock()

	msgs, err := w.src.SupportMessages(s.ctx)

	w.mu.Lock()
	if !w.currentLocked(s.epoch) || w.messages.stale(seq) {
		w.mu.Unlock()
		return
	}
	if err != nil {
		changed := w.failLocked(err)
		w.mu.Unlock()
		if changed {
			w.notify()
		}
		return
	}
	w.messages.applied = seq
	w.msgs = msgs
	w.succeedLocked()
	w.mu.Unlock()
	w.notify()
}

func (w *SupportWidget) notify() {
	if w.onChange != nil {
		w.onChange()
	}
}
