package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aserras/web/backend/internal/model/chat"
)

const (
	// DefaultHistoryLimit bounds every conversation; the oldest turns drop first.
	DefaultHistoryLimit = 200

	WelcomeMessage = "Welcome back to your private workspace. Ask anything to continue our flow."
)

var ErrEmptyMessage = errors.New("message cannot be empty")

// Service keeps one bounded conversation per account in memory.
type Service struct {
	mu            sync.Mutex
	conversations map[string]*chat.Conversation
	limit         int
	now           func() time.Time
}

// NewService bootstraps the in-memory history. limit <= 0 selects DefaultHistoryLimit.
func NewService(limit int) *Service {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Service{
		conversations: make(map[string]*chat.Conversation),
		limit:         limit,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Append records a user turn and the reply to it, returning the stored pair.
func (s *Service) Append(_ context.Context, owner, userText, reply string) (chat.Message, chat.Message, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return chat.Message{}, chat.Message{}, ErrEmptyMessage
	}

	now := s.now()
	user := chat.Message{ID: "user_" + uuid.NewString(), Role: chat.RoleUser, Text: userText, Timestamp: now}
	ai := chat.Message{ID: "ai_" + uuid.NewString(), Role: chat.RoleAI, Text: reply, Timestamp: now}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversation(owner)
	conv.Messages = append(conv.Messages, user, ai)
	if over := len(conv.Messages) - s.limit; over > 0 {
		conv.Messages = append(conv.Messages[:0:0], conv.Messages[over:]...)
	}
	conv.UpdatedAt = now
	return user, ai, nil
}

// Transcript returns a copy of owner's conversation, starting with the
// welcome message for new accounts.
func (s *Service) Transcript(_ context.Context, owner string) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversation(owner)
	copied := make([]chat.Message, len(conv.Messages))
	copy(copied, conv.Messages)
	return copied
}

// Clear drops owner's conversation.
func (s *Service) Clear(_ context.Context, owner string) {
	s.mu.Lock()
	delete(s.conversations, owner)
	s.mu.Unlock()
}

// conversation must be called with mu held.
func (s *Service) conversation(owner string) *chat.Conversation {
	conv, ok := s.conversations[owner]
	if !ok {
		now := s.now()
		conv = &chat.Conversation{
			Owner: owner,
			Messages: []chat.Message{{
				ID:        "welcome-ai",
				Role:      chat.RoleAI,
				Text:      WelcomeMessage,
				Timestamp: now,
			}},
			UpdatedAt: now,
		}
		s.conversations[owner] = conv
	}
	return conv
}

// Recent returns at most n of owner's latest turns, excluding the welcome message.
func (s *Service) Recent(ctx context.Context, owner string, n int) []chat.Message {
	messages := s.Transcript(ctx, owner)
	if len(messages) > 0 && messages[0].ID == "welcome-ai" {
		messages = messages[1:]
	}
	if n >= 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	return messages
}
