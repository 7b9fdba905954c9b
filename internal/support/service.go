package support

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"market-chat/internal/apperrors"
	"market-chat/internal/config"
	"market-chat/internal/logger"
	"market-chat/internal/models"
	"market-chat/internal/observability"
	"market-chat/internal/repositories"
)

const (
	MaxBodyLength      = 4000
	DefaultThreadLimit = 50
	MaxThreadLimit     = 200
)

var ErrBodyTooLong = apperrors.BadRequest("message is too long", nil)

type Directory interface {
	ResolveUsers(ctx context.Context, ids []int64) (map[int64]models.UserIdentity, error)
}

type Broadcaster interface {
	BroadcastSupport(userID int64, event models.SupportEvent)
}

// Service runs the per-user support threads. A user only ever reaches their
// own thread; operators reach any thread by user id.
type Service struct {
	repo      repositories.SupportRepository
	directory Directory
	hub       Broadcaster
	cfg       config.SupportConfig
	hours     Hours
}

func NewService(repo repositories.SupportRepository, directory Directory, hub Broadcaster, cfg config.SupportConfig) (*Service, error) {
	hours, err := NewHours(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{repo: repo, directory: directory, hub: hub, cfg: cfg, hours: hours}, nil
}

func (s *Service) Config() config.SupportConfig {
	return s.cfg
}

func (s *Service) Status(now time.Time) models.SupportStatus {
	return StatusAt(s.cfg, s.hours, now)
}

// Messages returns the user's thread oldest first.
func (s *Service) Messages(ctx context.Context, userID int64) ([]models.SupportMessage, error) {
	msgs, err := s.repo.ListMessages(ctx, userID)
	if err != nil {
		return nil, apperrors.Transient(err)
	}
	return msgs, nil
}

// Send appends body to userID's thread as senderRole.
func (s *Service) Send(ctx context.Context, userID int64, senderRole, body string) (models.SupportMessage, error) {
	if senderRole != models.RoleUser && senderRole != models.RoleAdmin {
		return models.SupportMessage{}, apperrors.BadRequest("unknown sender role", nil)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return models.SupportMessage{}, apperrors.ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return models.SupportMessage{}, ErrBodyTooLong
	}

	msg, err := s.repo.Append(ctx, userID, senderRole, body)
	if err != nil {
		return models.SupportMessage{}, apperrors.Transient(err)
	}

	observability.IncMessageSent(observability.LaneSupport, senderRole)
	event := models.SupportEvent{Type: models.EventMessage, UserID: userID, Message: &msg}
	if s.hub != nil {
		s.hub.BroadcastSupport(userID, event)
	}
	s.publish(ctx, observability.RoutingSupportSent, "message_sent", event)
	return msg, nil
}

// MarkRead stamps what the other side wrote as read for viewerRole.
func (s *Service) MarkRead(ctx context.Context, userID int64, viewerRole string) (int64, error) {
	updated, err := s.repo.MarkRead(ctx, userID, viewerRole)
	if err != nil {
		return 0, apperrors.Transient(err)
	}
	if updated > 0 {
		observability.AddMessagesRead(observability.LaneSupport, updated)
		event := models.SupportEvent{Type: models.EventRead, UserID: userID, ReaderRole: viewerRole, Updated: updated}
		if s.hub != nil {
			s.hub.BroadcastSupport(userID, event)
		}
		s.publish(ctx, observability.RoutingSupportRead, "messages_read", event)
	}
	return updated, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64, viewerRole string) (int64, error) {
	count, err := s.repo.UnreadCount(ctx, userID, viewerRole)
	if err != nil {
		return 0, apperrors.Transient(err)
	}
	return count, nil
}

// Threads is the operator inbox with user identities filled in.
func (s *Service) Threads(ctx context.Context, limit int) ([]models.SupportThread, error) {
	if limit <= 0 {
		limit = DefaultThreadLimit
	}
	if limit > MaxThreadLimit {
		limit = MaxThreadLimit
	}

	threads, err := s.repo.ListThreads(ctx, limit)
	if err != nil {
		return nil, apperrors.Transient(err)
	}
	if len(threads) == 0 {
		return threads, nil
	}

	ids := make([]int64, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.UserID)
	}
	users, err := s.directory.ResolveUsers(ctx, ids)
	if err != nil {
		return nil, apperrors.Transient(err)
	}
	for i := range threads {
		if u, ok := users[threads[i].UserID]; ok {
			threads[i].User = u
		} else {
			threads[i].User = models.UserIdentity{ID: threads[i].UserID}
		}
	}
	return threads, nil
}

func (s *Service) publish(ctx context.Context, routingKey, name string, payload any) {
	envelope := observability.EventEnvelope{EventType: observability.EventTypeSupport, EventName: name, Payload: payload}
	if err := observability.PublishEvent(ctx, routingKey, envelope, observability.HeadersFromContext(ctx)); err != nil {
		logger.Warn().Err(err).Str("routing_key", routingKey).Msg("publish support event failed")
	}
}
