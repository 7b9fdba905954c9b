package support

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"market-chat/internal/apperrors"
	"market-chat/internal/config"
	"market-chat/internal/mocks"
	"market-chat/internal/models"
)

func testConfig() config.SupportConfig {
	return config.SupportConfig{
		Enabled:     true,
		Timezone:    "UTC",
		OpenHour:    9,
		CloseHour:   18,
		Greeting:    "Hi there",
		OfflineText: "We're away",
	}
}

func at(hour int) time.Time {
	return time.Date(2024, 6, 3, hour, 30, 0, 0, time.UTC)
}

func TestHoursDaytimeWindow(t *testing.T) {
	h, err := NewHours(testConfig())
	require.NoError(t, err)

	assert.False(t, h.IsOpen(at(8)))
	assert.True(t, h.IsOpen(at(9)))
	assert.True(t, h.IsOpen(at(17)))
	assert.False(t, h.IsOpen(at(18)))
}

func TestHoursOvernightWindow(t *testing.T) {
	cfg := testConfig()
	cfg.OpenHour, cfg.CloseHour = 22, 6
	h, err := NewHours(cfg)
	require.NoError(t, err)

	assert.True(t, h.IsOpen(at(23)))
	assert.True(t, h.IsOpen(at(2)))
	assert.False(t, h.IsOpen(at(6)))
	assert.False(t, h.IsOpen(at(12)))
}

func TestHoursUseConfiguredTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Timezone = "Asia/Tokyo"
	h, err := NewHours(cfg)
	require.NoError(t, err)

	// 01:30 UTC is 10:30 in Tokyo.
	assert.True(t, h.IsOpen(at(1)))
	assert.False(t, h.IsOpen(at(12)))
}

func TestHoursEqualBoundsNeverOpen(t *testing.T) {
	cfg := testConfig()
	cfg.OpenHour, cfg.CloseHour = 9, 9
	h, err := NewHours(cfg)
	require.NoError(t, err)

	assert.False(t, h.IsOpen(at(9)))
}

func TestNewHoursRejectsUnknownZone(t *testing.T) {
	cfg := testConfig()
	cfg.Timezone = "Nowhere/Special"
	_, err := NewHours(cfg)
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	svc, err := NewService(new(mocks.SupportRepositoryMock), new(mocks.DirectoryMock), nil, testConfig())
	require.NoError(t, err)

	assert.Equal(t, models.SupportStatus{Enabled: true, Online: true, Message: "Hi there"}, svc.Status(at(10)))
	assert.Equal(t, models.SupportStatus{Enabled: true, Online: false, Message: "We're away"}, svc.Status(at(20)))

	cfg := testConfig()
	cfg.Enabled = false
	disabled, err := NewService(new(mocks.SupportRepositoryMock), new(mocks.DirectoryMock), nil, cfg)
	require.NoError(t, err)
	assert.False(t, disabled.Status(at(10)).Enabled)
}

func TestSendValidatesAndBroadcasts(t *testing.T) {
	repo := new(mocks.SupportRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	svc, err := NewService(repo, new(mocks.DirectoryMock), hub, testConfig())
	require.NoError(t, err)
	ctx := context.Background()
	msg := models.SupportMessage{ID: 5, UserID: 7, SenderRole: models.RoleUser, Body: "help"}

	repo.On("Append", ctx, int64(7), models.RoleUser, "help").Return(msg, nil).Once()
	hub.On("BroadcastSupport", int64(7), mock.MatchedBy(func(ev models.SupportEvent) bool {
		return ev.Type == models.EventMessage && ev.Message != nil && ev.Message.ID == 5
	})).Once()

	got, err := svc.Send(ctx, 7, models.RoleUser, " help ")
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, err = svc.Send(ctx, 7, models.RoleUser, "  ")
	assert.ErrorIs(t, err, apperrors.ErrEmptyMessage)

	_, err = svc.Send(ctx, 7, "robot", "hi")
	assert.ErrorIs(t, err, apperrors.BadRequest("", nil))

	repo.AssertExpectations(t)
	hub.AssertExpectations(t)
}

func TestStoreErrorsAreTransient(t *testing.T) {
	repo := new(mocks.SupportRepositoryMock)
	svc, err := NewService(repo, new(mocks.DirectoryMock), nil, testConfig())
	require.NoError(t, err)
	ctx := context.Background()
	dbErr := errors.New("database is locked")

	repo.On("ListMessages", ctx, int64(7)).Return(nil, dbErr).Once()
	repo.On("MarkRead", ctx, int64(7), models.RoleAdmin).Return(int64(0), dbErr).Once()

	_, err = svc.Messages(ctx, 7)
	assert.True(t, apperrors.IsTransient(err))

	_, err = svc.MarkRead(ctx, 7, models.RoleAdmin)
	assert.True(t, apperrors.IsTransient(err))
}

func TestMarkReadBroadcastsChanges(t *testing.T) {
	repo := new(mocks.SupportRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	svc, err := NewService(repo, new(mocks.DirectoryMock), hub, testConfig())
	require.NoError(t, err)
	ctx := context.Background()

	repo.On("MarkRead", ctx, int64(7), models.RoleUser).Return(int64(2), nil).Once()
	hub.On("BroadcastSupport", int64(7), models.SupportEvent{
		Type: models.EventRead, UserID: 7, ReaderRole: models.RoleUser, Updated: 2,
	}).Once()

	n, err := svc.MarkRead(ctx, 7, models.RoleUser)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	hub.AssertExpectations(t)
}

func TestThreadsFillsIdentitiesAndClampsLimit(t *testing.T) {
	repo := new(mocks.SupportRepositoryMock)
	dir := new(mocks.DirectoryMock)
	svc, err := NewService(repo, dir, nil, testConfig())
	require.NoError(t, err)
	ctx := context.Background()

	repo.On("ListThreads", ctx, MaxThreadLimit).Return([]models.SupportThread{
		{UserID: 7, LastMessage: "help", UnreadCount: 1},
		{UserID: 8, LastMessage: "thanks"},
	}, nil).Once()
	dir.On("ResolveUsers", ctx, []int64{7, 8}).Return(map[int64]models.UserIdentity{7: {ID: 7, Name: "Gus"}}, nil).Once()

	threads, err := svc.Threads(ctx, 10000)

	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "Gus", threads[0].User.Name)
	assert.Equal(t, models.UserIdentity{ID: 8}, threads[1].User)
}
