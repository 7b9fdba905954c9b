package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// SupportMessage belongs to the single support thread of UserID.
type SupportMessage struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	SenderRole string     `db:"sender_role" json:"sender_role"`
	Body       string     `db:"body" json:"body"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ReadAt     *time.Time `db:"read_at" json:"read_at"`
}

// SupportThread is one row of the operator inbox.
type SupportThread struct {
	UserID        int64        `db:"user_id" json:"user_id"`
	User          UserIdentity `db:"-" json:"user"`
	LastMessage   string       `db:"last_message" json:"last_message"`
	LastMessageAt time.Time    `db:"last_message_at" json:"last_message_at"`
	UnreadCount   int64        `db:"unread_count" json:"unread_count"`
}

// SupportStatus is the business-hours view shown by the support widget.
type SupportStatus struct {
	Enabled bool   `json:"enabled"`
	Online  bool   `json:"online"`
	Message string `json:"message"`
}

// SupportEvent is pushed to websocket subscribers of a support thread.
type SupportEvent struct {
	Type       string          `json:"type"`
	UserID     int64           `json:"user_id"`
	Message    *SupportMessage `json:"message,omitempty"`
	ReaderRole string          `json:"reader_role,omitempty"`
	Updated    int64           `json:"updated,omitempty"`
}
