package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"market-chat/internal/apperrors"
	"market-chat/internal/logger"
	"market-chat/internal/models"
	"market-chat/internal/observability"
	"market-chat/internal/repositories"
)

// MaxBodyLength bounds a single message, in runes.
const MaxBodyLength = 4000

var ErrBodyTooLong = apperrors.BadRequest(fmt.Sprintf("message exceeds %d characters", MaxBodyLength), nil)

// Directory resolves who and what a conversation is about.
type Directory interface {
	SearchUsers(ctx context.Context, viewerID int64, query string, limit int) ([]models.UserIdentity, error)
	ResolveUsers(ctx context.Context, ids []int64) (map[int64]models.UserIdentity, error)
	ResolveListings(ctx context.Context, ids []int64) (map[int64]models.ListingSummary, error)
}

// Broadcaster pushes events to live subscribers of a conversation.
type Broadcaster interface {
	BroadcastConversation(conversationID int64, event models.ConversationEvent)
}

// Service is the conversation store as seen by the HTTP and websocket layers.
// Storage failures surface as transient errors; everything else carries its
// own code.
type Service struct {
	repo      repositories.ConversationRepository
	directory Directory
	hub       Broadcaster
}

func NewService(repo repositories.ConversationRepository, directory Directory, hub Broadcaster) *Service {
	return &Service{repo: repo, directory: directory, hub: hub}
}

// ListConversations returns the user's conversations, most recently active
// first, each with the counterpart's identity, listing and unread count.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Transient(err)
	}

	userIDs := make([]int64, 0, len(rows))
	var listingIDs []int64
	for _, row := range rows {
		userIDs = append(userIDs, row.OtherParticipant(userID))
		if row.ListingID != nil {
			listingIDs = append(listingIDs, *row.ListingID)
		}
	}

	users := map[int64]models.UserIdentity{}
	listings := map[int64]models.ListingSummary{}
	if len(userIDs) > 0 {
		if users, err = s.directory.ResolveUsers(ctx, userIDs); err != nil {
			return nil, apperrors.Transient(err)
		}
	}
	if len(listingIDs) > 0 {
		if listings, err = s.directory.ResolveListings(ctx, listingIDs); err != nil {
			return nil, apperrors.Transient(err)
		}
	}

	summaries := make([]models.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		otherID := row.OtherParticipant(userID)
		other, ok := users[otherID]
		if !ok {
			other = models.UserIdentity{ID: otherID}
		}
		summary := models.ConversationSummary{
			ID:            row.ID,
			OtherUser:     other,
			LastMessage:   row.LastMessage,
			LastMessageAt: row.LastMessageAt,
			UnreadCount:   row.UnreadCount,
		}
		if row.ListingID != nil {
			listing, ok := listings[*row.ListingID]
			if !ok {
				listing = models.ListingSummary{ID: *row.ListingID}
			}
			summary.Listing = &listing
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// StartConversation gets or creates the conversation between initiator and
// recipient about listingID and appends body to it. Repeating the call reuses
// the same conversation.
func (s *Service) StartConversation(ctx context.Context, initiatorID, recipientID int64, listingID *int64, body string) (models.Message, error) {
	body, err := normalizeBody(body)
	if err != nil {
		return models.Message{}, err
	}
	if initiatorID == recipientID {
		return models.Message{}, apperrors.ErrInvalidParticipant
	}

	users, err := s.directory.ResolveUsers(ctx, []int64{recipientID})
	if err != nil {
		return models.Message{}, apperrors.Transient(err)
	}
	if _, ok := users[recipientID]; !ok {
		return models.Message{}, apperrors.NotFound("user")
	}
	if listingID != nil {
		listings, err := s.directory.ResolveListings(ctx, []int64{*listingID})
		if err != nil {
			return models.Message{}, apperrors.Transient(err)
		}
		if _, ok := listings[*listingID]; !ok {
			return models.Message{}, apperrors.NotFound("listing")
		}
	}

	msg, err := s.repo.CreateOrAppend(ctx, initiatorID, recipientID, listingID, body)
	if err != nil {
		return models.Message{}, apperrors.Transient(err)
	}

	observability.IncConversationStart()
	s.messageSent(ctx, msg)
	return msg, nil
}

// FetchMessages returns the conversation's messages oldest first.
func (s *Service) FetchMessages(ctx context.Context, conversationID, viewerID int64) ([]models.Message, error) {
	if err := s.Authorize(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperrors.Transient(err)
	}
	return msgs, nil
}

// SendMessage appends body from senderID and bumps the conversation's
// activity time.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID int64, body string) (models.Message, error) {
	body, err := normalizeBody(body)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := s.repo.AppendMessage(ctx, conversationID, senderID, body)
	if err != nil {
		return models.Message{}, apperrors.Transient(err)
	}
	s.messageSent(ctx, msg)
	return msg, nil
}

// MarkRead stamps every unread message the viewer received and returns how
// many changed.
func (s *Service) MarkRead(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	updated, err := s.repo.MarkRead(ctx, conversationID, viewerID)
	if err != nil {
		return 0, apperrors.Transient(err)
	}
	if updated == 0 {
		return 0, nil
	}

	observability.AddMessagesRead(observability.LaneConversation, updated)
	event := models.ConversationEvent{Type: models.EventRead, ConversationID: conversationID, ReaderID: viewerID, Updated: updated}
	if s.hub != nil {
		s.hub.BroadcastConversation(conversationID, event)
	}
	s.publish(ctx, observability.RoutingMessagesRead, "messages_read", event)
	return updated, nil
}

// UnreadCount counts the messages viewerID has received but not read.
func (s *Service) UnreadCount(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	if err := s.Authorize(ctx, conversationID, viewerID); err != nil {
		return 0, err
	}
	count, err := s.repo.UnreadCount(ctx, conversationID, viewerID)
	if err != nil {
		return 0, apperrors.Transient(err)
	}
	return count, nil
}

// SearchUsers finds people the viewer can start a conversation with.
func (s *Service) SearchUsers(ctx context.Context, viewerID int64, query string, limit int) ([]models.UserIdentity, error) {
	users, err := s.directory.SearchUsers(ctx, viewerID, query, limit)
	if err != nil {
		return nil, apperrors.Transient(err)
	}
	return users, nil
}

// Authorize checks that viewerID takes part in the conversation.
func (s *Service) Authorize(ctx context.Context, conversationID, viewerID int64) error {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return apperrors.Transient(err)
	}
	if !conv.HasParticipant(viewerID) {
		return apperrors.ErrNotParticipant
	}
	return nil
}

func (s *Service) messageSent(ctx context.Context, msg models.Message) {
	observability.IncMessageSent(observability.LaneConversation, models.RoleUser)
	event := models.ConversationEvent{Type: models.EventMessage, ConversationID: msg.ConversationID, Message: &msg}
	if s.hub != nil {
		s.hub.BroadcastConversation(msg.ConversationID, event)
	}
	s.publish(ctx, observability.RoutingMessageSent, "message_sent", event)
}

func (s *Service) publish(ctx context.Context, routingKey, name string, payload any) {
	envelope := observability.EventEnvelope{EventType: observability.EventTypeChat, EventName: name, Payload: payload}
	if err := observability.PublishEvent(ctx, routingKey, envelope, observability.HeadersFromContext(ctx)); err != nil {
		logger.Warn().Err(err).Str("routing_key", routingKey).Msg("publish chat event failed")
	}
}

func normalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperrors.ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return "", ErrBodyTooLong
	}
	return body, nil
}
