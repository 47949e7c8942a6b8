package models

import "time"

// Message author roles.
const (
	RoleUser  = "user"
	RoleTutor = "tutor"
	RoleBot   = "bot"
)

// Message represents a chat message within a session.
type Message struct {
	ID        int       `db:"id" json:"id"`
	SessionID int       `db:"session_id" json:"session_id"`
	SenderID  int       `db:"sender_id" json:"sender_id"`
	Text      string    `db:"text" json:"text"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
