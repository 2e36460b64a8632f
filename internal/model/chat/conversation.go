package chat

import "time"

// Conversation is the bounded transcript owned by one account.
type Conversation struct {
	Owner     string    `json:"owner"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}
