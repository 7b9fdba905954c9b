package models

// UserIdentity is what the chat UI shows for a user.
type UserIdentity struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Email     string `db:"email" json:"email"`
	Handle    string `db:"handle" json:"handle"`
	AvatarURL string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// ListingSummary is the subject shown next to a listing-scoped conversation.
type ListingSummary struct {
	ID       int64  `db:"id" json:"id"`
	Title    string `db:"title" json:"title"`
	ImageURL string `db:"image_url" json:"image_url,omitempty"`
}
