package controller

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aserras/web/backend/internal/client/pageconfig"
	"github.com/aserras/web/backend/internal/extract"
)

const (
	RoleUser = "user"
	RoleAI   = "ai"

	// MaxChatMessageLength mirrors the server's limit.
	MaxChatMessageLength = 4000

	noReply = "The assistant returned an empty response."
)

// ChatState is the rendered conversation.
type ChatState struct {
	Messages []extract.ChatMessage
	// Pending is true while a reply placeholder is shown.
	Pending bool
	Error   string
	Model   string
}

// Chat drives the conversation workspace.
type Chat struct {
	deps      Deps
	m         model[ChatState]
	now       func() time.Time
	modelName string
}

// NewChat returns a Chat controller. An empty modelName uses the server default.
func NewChat(deps Deps, modelName string) *Chat {
	c := &Chat{deps: deps, now: time.Now, modelName: modelName}
	c.m.state.Model = modelName
	return c
}

func (c *Chat) State() ChatState { return c.m.snapshot() }
func (c *Chat) Subscribe(fn func(ChatState)) { c.m.subscribe(fn) }

// Reset clears the conversation and discards any outstanding reply.
func (c *Chat) Reset() { c.m.reset(ChatState{Model: c.modelName}) }

// Send appends the user's message, requests a reply and reconciles.
func (c *Chat) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &InputError{Message: "Message cannot be empty."}
	}
	if len(text) > MaxChatMessageLength {
		return &InputError{Message: "Message is too long."}
	}
	if err := c.deps.guard(); err != nil {
		return err
	}

	user := extract.ChatMessage{Role: RoleUser, Text: text, Timestamp: c.timestamp()}
	gen, ok := c.m.begin(func(s *ChatState) {
		s.Messages = append(slices.Clip(s.Messages), user)
		s.Pending = true
		s.Error = ""
	})
	if !ok {
		return ErrBusy
	}

	body := map[string]string{"message": text}
	if c.modelName != "" {
		body["model"] = c.modelName
	}
	payload, err := c.deps.Requests.RequestEndpoint(ctx, pageconfig.EndpointChatSend, authed(http.MethodPost, body))

	var applied bool
	if err != nil {
		msg := c.deps.inlineError(err)
		applied = c.m.finish(gen, func(s *ChatState) {
			s.Pending = false
			s.Error = msg
		})
	} else {
		reply := extract.Reply(payload)
		if reply == "" {
			reply = noReply
		}
		ai := extract.ChatMessage{Role: RoleAI, Text: reply, Timestamp: c.timestamp()}
		applied = c.m.finish(gen, func(s *ChatState) {
			s.Messages = append(slices.Clip(s.Messages), ai)
			s.Pending = false
		})
	}

	return settle(applied, err)
}

// LoadHistory replaces the conversation with the server's record.
func (c *Chat) LoadHistory(ctx context.Context) error {
	if err := c.deps.guard(); err != nil {
		return err
	}
	gen, ok := c.m.begin(func(s *ChatState) { s.Error = "" })
	if !ok {
		return ErrBusy
	}

	payload, err := c.deps.Requests.RequestEndpoint(ctx, pageconfig.EndpointChatHistory, authed(http.MethodGet, nil))
	var applied bool
	if err != nil {
		msg := c.deps.inlineError(err)
		applied = c.m.finish(gen, func(s *ChatState) { s.Error = msg })
	} else {
		messages := extract.Messages(payload)
		applied = c.m.finish(gen, func(s *ChatState) { s.Messages = messages })
	}
	return settle(applied, err)
}

func (c *Chat) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}
