package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"market-chat/internal/config"
	"market-chat/internal/models"
	"market-chat/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateOrAppend(ctx context.Context, initiatorID, recipientID int64, listingID *int64, body string) (models.Message, error) {
	args := m.Called(ctx, initiatorID, recipientID, listingID, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int64) ([]models.ConversationRow, error) {
	args := m.Called(ctx, userID)
	var rows []models.ConversationRow
	if val := args.Get(0); val != nil {
		rows = val.([]models.ConversationRow)
	}
	return rows, args.Error(1)
}

func (m *ConversationRepositoryMock) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ConversationRepositoryMock) AppendMessage(ctx context.Context, conversationID, senderID int64, body string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ConversationRepositoryMock) MarkRead(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	args := m.Called(ctx, conversationID, viewerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ConversationRepositoryMock) UnreadCount(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	args := m.Called(ctx, conversationID, viewerID)
	return args.Get(0).(int64), args.Error(1)
}

type SupportRepositoryMock struct {
	mock.Mock
}

func (m *SupportRepositoryMock) Append(ctx context.Context, userID int64, senderRole, body string) (models.SupportMessage, error) {
	args := m.Called(ctx, userID, senderRole, body)
	var msg models.SupportMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.SupportMessage)
	}
	return msg, args.Error(1)
}

func (m *SupportRepositoryMock) ListMessages(ctx context.Context, userID int64) ([]models.SupportMessage, error) {
	args := m.Called(ctx, userID)
	var msgs []models.SupportMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.SupportMessage)
	}
	return msgs, args.Error(1)
}

func (m *SupportRepositoryMock) MarkRead(ctx context.Context, userID int64, viewerRole string) (int64, error) {
	args := m.Called(ctx, userID, viewerRole)
	return args.Get(0).(int64), args.Error(1)
}

func (m *SupportRepositoryMock) UnreadCount(ctx context.Context, userID int64, viewerRole string) (int64, error) {
	args := m.Called(ctx, userID, viewerRole)
	return args.Get(0).(int64), args.Error(1)
}

func (m *SupportRepositoryMock) ListThreads(ctx context.Context, limit int) ([]models.SupportThread, error) {
	args := m.Called(ctx, limit)
	var threads []models.SupportThread
	if val := args.Get(0); val != nil {
		threads = val.([]models.SupportThread)
	}
	return threads, args.Error(1)
}

type DirectoryRepositoryMock struct {
	mock.Mock
}

func (m *DirectoryRepositoryMock) SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]models.UserIdentity, error) {
	args := m.Called(ctx, query, excludeID, limit)
	var users []models.UserIdentity
	if val := args.Get(0); val != nil {
		users = val.([]models.UserIdentity)
	}
	return users, args.Error(1)
}

func (m *DirectoryRepositoryMock) GetUsers(ctx context.Context, ids []int64) ([]models.UserIdentity, error) {
	args := m.Called(ctx, ids)
	var users []models.UserIdentity
	if val := args.Get(0); val != nil {
		users = val.([]models.UserIdentity)
	}
	return users, args.Error(1)
}

func (m *DirectoryRepositoryMock) GetListings(ctx context.Context, ids []int64) ([]models.ListingSummary, error) {
	args := m.Called(ctx, ids)
	var listings []models.ListingSummary
	if val := args.Get(0); val != nil {
		listings = val.([]models.ListingSummary)
	}
	return listings, args.Error(1)
}

// DirectoryMock stands in for the cached directory used by the services.
type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) SearchUsers(ctx context.Context, viewerID int64, query string, limit int) ([]models.UserIdentity, error) {
	args := m.Called(ctx, viewerID, query, limit)
	var users []models.UserIdentity
	if val := args.Get(0); val != nil {
		users = val.([]models.UserIdentity)
	}
	return users, args.Error(1)
}

func (m *DirectoryMock) ResolveUsers(ctx context.Context, ids []int64) (map[int64]models.UserIdentity, error) {
	args := m.Called(ctx, ids)
	var users map[int64]models.UserIdentity
	if val := args.Get(0); val != nil {
		users = val.(map[int64]models.UserIdentity)
	}
	return users, args.Error(1)
}

func (m *DirectoryMock) ResolveListings(ctx context.Context, ids []int64) (map[int64]models.ListingSummary, error) {
	args := m.Called(ctx, ids)
	var listings map[int64]models.ListingSummary
	if val := args.Get(0); val != nil {
		listings = val.(map[int64]models.ListingSummary)
	}
	return listings, args.Error(1)
}

type ConversationServiceMock struct {
	mock.Mock
}

func (m *ConversationServiceMock) ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationServiceMock) StartConversation(ctx context.Context, initiatorID, recipientID int64, listingID *int64, body string) (models.Message, error) {
	args := m.Called(ctx, initiatorID, recipientID, listingID, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ConversationServiceMock) FetchMessages(ctx context.Context, conversationID, viewerID int64) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, viewerID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ConversationServiceMock) SendMessage(ctx context.Context, conversationID, senderID int64, body string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ConversationServiceMock) MarkRead(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	args := m.Called(ctx, conversationID, viewerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ConversationServiceMock) UnreadCount(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	args := m.Called(ctx, conversationID, viewerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ConversationServiceMock) SearchUsers(ctx context.Context, viewerID int64, query string, limit int) ([]models.UserIdentity, error) {
	args := m.Called(ctx, viewerID, query, limit)
	var users []models.UserIdentity
	if val := args.Get(0); val != nil {
		users = val.([]models.UserIdentity)
	}
	return users, args.Error(1)
}

func (m *ConversationServiceMock) Authorize(ctx context.Context, conversationID, viewerID int64) error {
	args := m.Called(ctx, conversationID, viewerID)
	return args.Error(0)
}

type SupportServiceMock struct {
	mock.Mock
}

func (m *SupportServiceMock) Messages(ctx context.Context, userID int64) ([]models.SupportMessage, error) {
	args := m.Called(ctx, userID)
	var msgs []models.SupportMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.SupportMessage)
	}
	return msgs, args.Error(1)
}

func (m *SupportServiceMock) Send(ctx context.Context, userID int64, senderRole, body string) (models.SupportMessage, error) {
	args := m.Called(ctx, userID, senderRole, body)
	var msg models.SupportMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.SupportMessage)
	}
	return msg, args.Error(1)
}

func (m *SupportServiceMock) MarkRead(ctx context.Context, userID int64, viewerRole string) (int64, error) {
	args := m.Called(ctx, userID, viewerRole)
	return args.Get(0).(int64), args.Error(1)
}

func (m *SupportServiceMock) UnreadCount(ctx context.Context, userID int64, viewerRole string) (int64, error) {
	args := m.Called(ctx, userID, viewerRole)
	return args.Get(0).(int64), args.Error(1)
}

func (m *SupportServiceMock) Threads(ctx context.Context, limit int) ([]models.SupportThread, error) {
	args := m.Called(ctx, limit)
	var threads []models.SupportThread
	if val := args.Get(0); val != nil {
		threads = val.([]models.SupportThread)
	}
	return threads, args.Error(1)
}

func (m *SupportServiceMock) Status(now time.Time) models.SupportStatus {
	args := m.Called(now)
	return args.Get(0).(models.SupportStatus)
}

func (m *SupportServiceMock) Config() config.SupportConfig {
	args := m.Called()
	return args.Get(0).(config.SupportConfig)
}

// BroadcasterMock records websocket fan-out.
type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) BroadcastConversation(conversationID int64, event models.ConversationEvent) {
	m.Called(conversationID, event)
}

func (m *BroadcasterMock) BroadcastSupport(userID int64, event models.SupportEvent) {
	m.Called(userID, event)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.SupportRepository = (*SupportRepositoryMock)(nil)
var _ repositories.DirectoryRepository = (*DirectoryRepositoryMock)(nil)
var _ interface {
	ResolveUsers(context.Context, []int64) (map[int64]models.UserIdentity, error)
	ResolveListings(context.Context, []int64) (map[int64]models.ListingSummary, error)
} = (*DirectoryMock)(nil)
