package chat

import "time"

// Roles of a chat turn.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// Message is one turn of a workspace conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
