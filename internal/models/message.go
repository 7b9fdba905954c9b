package models

import "time"

// Message is one entry of a conversation's append-only log.
type Message struct {
	ID             int64      `db:"id" json:"id"`
	ConversationID int64      `db:"conversation_id" json:"conversation_id"`
	SenderID       int64      `db:"sender_id" json:"sender_id"`
	Body           string     `db:"body" json:"body"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ReadAt         *time.Time `db:"read_at" json:"read_at"`
}

// ConversationEvent is pushed to websocket subscribers of a conversation.
type ConversationEvent struct {
	Type           string   `json:"type"`
	ConversationID int64    `json:"conversation_id"`
	Message        *Message `json:"message,omitempty"`
	ReaderID       int64    `json:"reader_id,omitempty"`
	Updated        int64    `json:"updated,omitempty"`
}

const (
	EventMessage = "message"
	EventRead    = "read"
)
