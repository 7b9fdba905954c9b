package repositories

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-chat/internal/apperrors"
	"market-chat/internal/db"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := db.Connect(context.Background(), "sqlite", filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func newConversationRepo(t *testing.T) *ConversationRepo {
	repo := NewConversationRepo(newTestDB(t))
	repo.now = tickingClock()
	return repo
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreateOrAppendIsIdempotentOnKey(t *testing.T) {
	ctx := context.Background()
	repo := newConversationRepo(t)

	first, err := repo.CreateOrAppend(ctx, 1, 2, nil, "hello")
	require.NoError(t, err)
	second, err := repo.CreateOrAppend(ctx, 1, 2, nil, "anyone there?")
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)

	msgs, err := repo.ListMessages(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Body)
	assert.Equal(t, "anyone there?", msgs[1].Body)
}

func TestCreateOrAppendIgnoresParticipantOrder(t *testing.T) {
	ctx := context.Background()
	repo := newConversationRepo(t)

	first, err := repo.CreateOrAppend(ctx, 7, 3, nil, "hi")
	require.NoError(t, err)
	second, err := repo.CreateOrAppend(ctx, 3, 7, nil, "hey")
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)

	conv, err := repo.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), conv.ParticipantA)
	assert.Equal(t, int64(7), conv.ParticipantB)
}

func TestListingScopedConversationIsIndependent(t *testing.T) {
	ctx := context.Background()
	repo := newConversationRepo(t)

	plain, err := repo.CreateOrAppend(ctx, 1, 2, nil, "hi")
	require.NoError(t, err)
	scoped, err := repo.CreateOrAppend(ctx, 1, 2, int64Ptr(42), "is the lamp available?")
	require.NoError(t, err)
	again, err := repo.CreateOrAppend(ctx, 2, 1, int64Ptr(42), "yes")
	require.NoError(t, err)

	assert.NotEqual(t, plain.ConversationID, scoped.ConversationID)
	assert.Equal(t, scoped.ConversationID, again.ConversationID)

	conv, err := repo.GetConversation(ctx, scoped.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv.ListingID)
	assert.Equal(t, int64(42), *conv.ListingID)
}

func TestCreateOrAppendRejectsSelf(t *testing.T) {
	repo := newConversationRepo(t)

	_, err := repo.CreateOrAppend(context.Background(), 5, 5, nil, "me")
	assert.ErrorIs(t, err, apperrors.ErrInvalidParticipant)
}

func TestConcurrentCreateYieldsOneConversation(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepo(newTestDB(t))

	var wg sync.WaitGroup
	ids := make([]int64, 2)
	errs := make([]error, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := repo.CreateOrAppend(ctx, 1, 2, nil, "hello")
			ids[i], errs[i] = msg.ConversationID, err
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, ids[0], ids[1])

	rows, err := repo.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	msgs, err := repo.ListMessages(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestAppendMessageOrderingAndUnread(t *testing.T) {
	ctx := context.Background()
	repo := newConversationRepo(t)

	first, err := repo.CreateOrAppend(ctx, 1, 2, nil, "one")
	require.NoError(t, err)
	convID := first.ConversationID

	_, err = repo.AppendMessage(ctx, convID, 2, "two")
	require.NoError(t, err)
	last, err := repo.AppendMessage(ctx, convID, 1, "three")
	require.NoError(t, err)

	msgs, err := repo.ListMessages(ctx, convID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{msgs[0].Body, msgs[1].Body, msgs[2].Body})
	assert.Equal(t, last.ID, msgs[2].ID)
	assert.False(t, msgs[2].CreatedAt.IsZero())
	assert.Nil(t, msgs[2].ReadAt)

	unreadForB, err := repo.UnreadCount(ctx, convID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unreadForB)

	unreadForA, err := repo.UnreadCount(ctx, convID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unreadForA)

	conv, err := repo.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.True(t, conv.LastMessageAt.Equal(last.CreatedAt))
}

func TestLastMessageAtNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepo(newTestDB(t))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	current := base.Add(10 * time.Second)
	repo.now = func() time.Time { return current }

	first, err := repo.CreateOrAppend(ctx, 1, 2, nil, "hello")
	require.NoError(t, err)

	current = base.Add(20 * time.Second)
	reply, err := repo.AppendMessage(ctx, first.ConversationID, 2, "reply")
	require.NoError(t, err)

	// A writer whose clock lags behind the reply.
	current = base.Add(15 * time.Second)
	_, err = repo.CreateOrAppend(ctx, 1, 2, nil, "still there?")
	require.NoError(t, err)
	_, err = repo.AppendMessage(ctx, first.ConversationID, 1, "hello?")
	require.NoError(t, err)

	conv, err := repo.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.True(t, conv.LastMessageAt.Equal(reply.CreatedAt), "last_message_at=%s reply=%s", conv.LastMessageAt, reply.CreatedAt)

	current = base.Add(30 * time.Second)
	latest, err := repo.CreateOrAppend(ctx, 2, 1, nil, "yes")
	require.NoError(t, err)
	conv, err = repo.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.True(t, conv.LastMessageAt.Equal(latest.CreatedAt))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newConversationRepo(t)

	first, err := repo.CreateOrAppend(ctx, 1, 2, nil, "one")
	require.NoError(t, err)
	convID := first.ConversationID
	_, err = repo.AppendMessage(ctx, convID, 1, "two")
	require.NoError(t, err)
	_, err = repo.AppendMessage(ctx, convID, 2, "reply")
	require.NoError(t, err)

	updated, err := repo.MarkRead(ctx, convID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	unread, err := repo.UnreadCount(ctx, convID, 2)
	require.NoError(t, err)
	assert.Zero(t, unread)

	updated, err = repo.MarkRead(ctx, convID, 2)
	require.NoError(t, err)
	assert.Zero(t, updated)

	// The reader's own reply stays unread for the other side.
	unread, err = repo.UnreadCount(ctx, convID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestParticipantChecks(t *testing.T) {
	ctx := context.Background()
	repo := newConversationRepo(t)

	first, err := repo.CreateOrAppend(ctx, 1, 2, nil, "one")
	require.NoError(t, err)

	_, err = repo.AppendMessage(ctx, first.ConversationID, 9, "intruder")
	assert.ErrorIs(t, err, apperrors.ErrNotParticipant)

	_, err = repo.MarkRead(ctx, first.ConversationID, 9)
	assert.ErrorIs(t, err, apperrors.ErrNotParticipant)

	_, err = repo.AppendMessage(ctx, 999, 1, "nowhere")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = repo.GetConversation(ctx, 999)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestListForUserOrdersByActivity(t *testing.T) {
	ctx := context.Background()
	repo := newConversationRepo(t)

	older, err := repo.CreateOrAppend(ctx, 1, 2, nil, "to two")
	require.NoError(t, err)
	newer, err := repo.CreateOrAppend(ctx, 3, 1, nil, "from three")
	require.NoError(t, err)

	rows, err := repo.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newer.ConversationID, rows[0].ID)
	assert.Equal(t, "from three", rows[0].LastMessage)
	assert.Equal(t, int64(1), rows[0].UnreadCount)
	assert.Equal(t, older.ConversationID, rows[1].ID)
	assert.Zero(t, rows[1].UnreadCount)

	_, err = repo.AppendMessage(ctx, older.ConversationID, 2, "bump")
	require.NoError(t, err)

	rows, err = repo.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, older.ConversationID, rows[0].ID)
	assert.Equal(t, "bump", rows[0].LastMessage)

	none, err := repo.ListForUser(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSupportThread(t *testing.T) {
	ctx := context.Background()
	repo := NewSupportRepo(newTestDB(t))
	repo.now = tickingClock()

	_, err := repo.Append(ctx, 1, "user", "my order is late")
	require.NoError(t, err)
	_, err = repo.Append(ctx, 1, "admin", "looking into it")
	require.NoError(t, err)
	_, err = repo.Append(ctx, 2, "user", "hello?")
	require.NoError(t, err)
	_, err = repo.Append(ctx, 1, "user", "thanks")
	require.NoError(t, err)

	msgs, err := repo.ListMessages(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "admin", msgs[1].SenderRole)

	unread, err := repo.UnreadCount(ctx, 1, "user")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	updated, err := repo.MarkRead(ctx, 1, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
	updated, err = repo.MarkRead(ctx, 1, "admin")
	require.NoError(t, err)
	assert.Zero(t, updated)

	threads, err := repo.ListThreads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, int64(1), threads[0].UserID)
	assert.Equal(t, "thanks", threads[0].LastMessage)
	assert.Zero(t, threads[0].UnreadCount)
	assert.Equal(t, int64(2), threads[1].UserID)
	assert.Equal(t, int64(1), threads[1].UnreadCount)
}

func TestDirectorySearch(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	database.MustExec(`INSERT INTO users (name, email, handle) VALUES
        ('Jane Doe', 'jane@example.com', 'janed'),
        ('John Smith', 'john@example.com', 'jsmith'),
        ('Ada Lovelace', 'ada@example.com', 'ada')`)
	database.MustExec(`INSERT INTO listings (seller_id, title, image_url) VALUES (1, 'Oak table', 'https://img/oak.jpg')`)
	repo := NewDirectoryRepo(database)

	users, err := repo.SearchUsers(ctx, "jdoe", 0, 10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Jane Doe", users[0].Name)

	users, err = repo.SearchUsers(ctx, "j", 1, 10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "jsmith", users[0].Handle)

	users, err = repo.SearchUsers(ctx, "100%", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, users)

	found, err := repo.GetUsers(ctx, []int64{1, 3, 42})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	listings, err := repo.GetListings(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Oak table", listings[0].Title)
}

func TestSubsequencePattern(t *testing.T) {
	assert.Equal(t, "%j%d%", SubsequencePattern(" JD "))
	assert.Equal(t, `%1%0%0%\%%`, SubsequencePattern("100%"))
	assert.Equal(t, "%", SubsequencePattern(""))
}
