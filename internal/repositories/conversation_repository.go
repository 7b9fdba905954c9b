package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"market-chat/internal/apperrors"
	"market-chat/internal/models"
)

var ErrConversationNotFound = apperrors.NotFound("conversation")

// ConversationRepository is the conversation/message store.
type ConversationRepository interface {
	CreateOrAppend(ctx context.Context, initiatorID, recipientID int64, listingID *int64, body string) (models.Message, error)
	GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]models.ConversationRow, error)
	ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
	AppendMessage(ctx context.Context, conversationID, senderID int64, body string) (models.Message, error)
	MarkRead(ctx context.Context, conversationID, viewerID int64) (int64, error)
	UnreadCount(ctx context.Context, conversationID, viewerID int64) (int64, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db, now: storeNow}
}

// storeNow is truncated to what TIMESTAMPTZ keeps so values read back compare
// equal to the values written.
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

const conversationColumns = `id, participant_a, participant_b, listing_id, created_at, last_message_at`

// CreateOrAppend gets or creates the conversation keyed by the unordered
// participant pair and listing, and appends body as a message, in one
// transaction. The unique index on (participant_a, participant_b,
// subject_key) resolves concurrent creators to the same row.
func (r *ConversationRepo) CreateOrAppend(ctx context.Context, initiatorID, recipientID int64, listingID *int64, body string) (models.Message, error) {
	if initiatorID == recipientID {
		return models.Message{}, apperrors.ErrInvalidParticipant
	}
	a, b := initiatorID, recipientID
	if a > b {
		a, b = b, a
	}
	var subjectKey int64
	if listingID != nil {
		subjectKey = *listingID
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	// The no-op update locks an existing row before the message clock is read.
	created := r.now()
	var conversationID int64
	upsert := `INSERT INTO conversations (participant_a, participant_b, listing_id, subject_key, created_at, last_message_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (participant_a, participant_b, subject_key) DO UPDATE SET subject_key = excluded.subject_key
        RETURNING id`
	if err := tx.QueryRowxContext(ctx, tx.Rebind(upsert), a, b, listingID, subjectKey, created, created).Scan(&conversationID); err != nil {
		return models.Message{}, fmt.Errorf("upsert conversation: %w", err)
	}

	now := r.now()
	msg, err := insertMessage(ctx, tx, conversationID, initiatorID, body, now)
	if err != nil {
		return models.Message{}, err
	}
	if err := touchConversation(ctx, tx, conversationID, now); err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, r.db.Rebind(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`), conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListForUser returns the user's conversations, most recently active first,
// with the last message body and the unread count for userID.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]models.ConversationRow, error) {
	query := `SELECT c.id, c.participant_a, c.participant_b, c.listing_id, c.created_at, c.last_message_at,
            COALESCE((SELECT m.body FROM messages m WHERE m.conversation_id = c.id ORDER BY m.created_at DESC, m.id DESC LIMIT 1), '') AS last_message,
            (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id AND m.read_at IS NULL AND m.sender_id <> ?) AS unread_count
        FROM conversations c
        WHERE c.participant_a = ? OR c.participant_b = ?
        ORDER BY c.last_message_at DESC, c.id DESC`
	rows := []models.ConversationRow{}
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), userID, userID, userID)
	return rows, err
}

// ListMessages returns the conversation's messages oldest first.
func (r *ConversationRepo) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT id, conversation_id, sender_id, body, created_at, read_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at ASC, id ASC`), conversationID)
	return msgs, err
}

// AppendMessage stores a message and bumps last_message_at while holding the
// conversation row lock.
func (r *ConversationRepo) AppendMessage(ctx context.Context, conversationID, senderID int64, body string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	if _, err := r.lockParticipant(ctx, tx, conversationID, senderID); err != nil {
		return models.Message{}, err
	}

	now := r.now()
	msg, err := insertMessage(ctx, tx, conversationID, senderID, body, now)
	if err != nil {
		return models.Message{}, err
	}
	if err := touchConversation(ctx, tx, conversationID, now); err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// MarkRead stamps read_at on every unread message the viewer received and
// returns how many rows changed.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := r.lockParticipant(ctx, tx, conversationID, viewerID); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE messages SET read_at = ?
        WHERE conversation_id = ? AND sender_id <> ? AND read_at IS NULL`), r.now(), conversationID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return updated, nil
}

// UnreadCount counts messages addressed to viewerID that are still unread.
func (r *ConversationRepo) UnreadCount(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM messages
        WHERE conversation_id = ? AND sender_id <> ? AND read_at IS NULL`), conversationID, viewerID)
	return count, err
}

// lockParticipant loads the conversation under a row lock and checks that
// userID takes part in it.
func (r *ConversationRepo) lockParticipant(ctx context.Context, tx *sqlx.Tx, conversationID, userID int64) (models.Conversation, error) {
	var conv models.Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?` + lockClause(r.db.DriverName())
	err := tx.GetContext(ctx, &conv, tx.Rebind(query), conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, apperrors.ErrNotParticipant
	}
	return conv, nil
}

// touchConversation moves last_message_at forward to at, never backwards.
func touchConversation(ctx context.Context, tx *sqlx.Tx, conversationID int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations SET last_message_at = ?
        WHERE id = ? AND last_message_at < ?`), at, conversationID, at)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sqlx.Tx, conversationID, senderID int64, body string, at time.Time) (models.Message, error) {
	msg := models.Message{ConversationID: conversationID, SenderID: senderID, Body: body, CreatedAt: at}
	err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO messages (conversation_id, sender_id, body, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		conversationID, senderID, body, at).Scan(&msg.ID)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// lockClause returns the row-lock suffix for driver. SQLite serializes
// writers on its single connection, so it needs none.
func lockClause(driver string) string {
	if driver == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}
