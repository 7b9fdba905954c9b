package models

import "time"

// Conversation is a 1:1 thread between two users, optionally about a listing.
// Participants are stored ordered so ParticipantA < ParticipantB.
type Conversation struct {
	ID            int64     `db:"id" json:"id"`
	ParticipantA  int64     `db:"participant_a" json:"participant_a"`
	ParticipantB  int64     `db:"participant_b" json:"participant_b"`
	ListingID     *int64    `db:"listing_id" json:"listing_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID int64) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// OtherParticipant returns the participant that is not userID.
func (c Conversation) OtherParticipant(userID int64) int64 {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// ConversationRow is a conversation with the per-viewer aggregates computed
// by the store.
type ConversationRow struct {
	Conversation
	LastMessage string `db:"last_message"`
	UnreadCount int64  `db:"unread_count"`
}

// ConversationSummary is the API view of a conversation for one viewer.
type ConversationSummary struct {
	ID            int64           `json:"id"`
	OtherUser     UserIdentity    `json:"other_user"`
	Listing       *ListingSummary `json:"listing,omitempty"`
	LastMessage   string          `json:"last_message"`
	LastMessageAt time.Time       `json:"last_message_at"`
	UnreadCount   int64           `json:"unread_count"`
}
