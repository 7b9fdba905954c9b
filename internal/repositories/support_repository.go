package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"market-chat/internal/models"
)

// SupportRepository stores the per-user support threads.
type SupportRepository interface {
	Append(ctx context.Context, userID int64, senderRole, body string) (models.SupportMessage, error)
	ListMessages(ctx context.Context, userID int64) ([]models.SupportMessage, error)
	MarkRead(ctx context.Context, userID int64, viewerRole string) (int64, error)
	UnreadCount(ctx context.Context, userID int64, viewerRole string) (int64, error)
	ListThreads(ctx context.Context, limit int) ([]models.SupportThread, error)
}

// SupportRepo is a sqlx-backed SupportRepository.
type SupportRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSupportRepo constructs a SupportRepo.
func NewSupportRepo(db *sqlx.DB) *SupportRepo {
	return &SupportRepo{db: db, now: storeNow}
}

// Append adds a message to the user's thread.
func (r *SupportRepo) Append(ctx context.Context, userID int64, senderRole, body string) (models.SupportMessage, error) {
	msg := models.SupportMessage{UserID: userID, SenderRole: senderRole, Body: body, CreatedAt: r.now()}
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO support_messages (user_id, sender_role, body, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		userID, senderRole, body, msg.CreatedAt).Scan(&msg.ID)
	if err != nil {
		return models.SupportMessage{}, fmt.Errorf("insert support message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the user's thread oldest first.
func (r *SupportRepo) ListMessages(ctx context.Context, userID int64) ([]models.SupportMessage, error) {
	msgs := []models.SupportMessage{}
	err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT id, user_id, sender_role, body, created_at, read_at
        FROM support_messages
        WHERE user_id = ?
        ORDER BY created_at ASC, id ASC`), userID)
	return msgs, err
}

// MarkRead marks everything the other side wrote as read for viewerRole.
func (r *SupportRepo) MarkRead(ctx context.Context, userID int64, viewerRole string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE support_messages SET read_at = ?
        WHERE user_id = ? AND sender_role <> ? AND read_at IS NULL`), r.now(), userID, viewerRole)
	if err != nil {
		return 0, fmt.Errorf("mark support read: %w", err)
	}
	return res.RowsAffected()
}

// UnreadCount counts messages in the thread that viewerRole has not read.
func (r *SupportRepo) UnreadCount(ctx context.Context, userID int64, viewerRole string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM support_messages
        WHERE user_id = ? AND sender_role <> ? AND read_at IS NULL`), userID, viewerRole)
	return count, err
}

// ListThreads is the operator inbox: one row per user, latest activity
// first, with the count of user messages the operator has not read.
func (r *SupportRepo) ListThreads(ctx context.Context, limit int) ([]models.SupportThread, error) {
	query := `SELECT s.user_id, s.body AS last_message, s.created_at AS last_message_at,
            (SELECT COUNT(*) FROM support_messages u WHERE u.user_id = s.user_id AND u.sender_role = ? AND u.read_at IS NULL) AS unread_count
        FROM support_messages s
        WHERE s.id = (SELECT MAX(l.id) FROM support_messages l WHERE l.user_id = s.user_id)
        ORDER BY s.created_at DESC, s.id DESC
        LIMIT ?`
	threads := []models.SupportThread{}
	err := r.db.SelectContext(ctx, &threads, r.db.Rebind(query), models.RoleUser, limit)
	return threads, err
}
