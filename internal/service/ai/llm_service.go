package ai

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/config"
	"github.com/aserras/web/backend/internal/logging"
	"github.com/aserras/web/backend/internal/model/chat"
)

// Service answers workspace prompts with the configured Ark model.
type Service struct {
	cfg   config.AIConfig
	chain compose.Runnable[map[string]any, *schema.Message]
	log   *zap.Logger
}

// NewService creates the Ark chat model described by cfg and wraps it.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel builds the prompt chain around an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{cfg: cfg, chain: runnable, log: logging.Named("ai")}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Reply answers message in the context of history.
func (s *Service) Reply(ctx context.Context, history []chat.Message, message string) (string, error) {
	response, err := s.chain.Invoke(ctx, s.chatInput(history, message))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	s.log.Debug("generated reply", zap.Int("history", len(history)), zap.Int("length", len(response.Content)))
	return strings.TrimSpace(response.Content), nil
}

// StreamReply streams the answer chunk by chunk.
func (s *Service) StreamReply(ctx context.Context, history []chat.Message, message string) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	stream, err := s.chain.Stream(ctx, s.chatInput(history, message))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

// GenerateCode writes code for instructions, optionally in language.
func (s *Service) GenerateCode(ctx context.Context, instructions, language string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":  codeSystemPrompt(language),
		"history": []*schema.Message{},
		"query":   instructions,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run code chain: %w", err)
	}
	return StripFences(response.Content), nil
}

// Collect drains a reply stream, calling onChunk for every non-empty piece,
// and returns the full text.
func Collect(stream *schema.StreamReader[*schema.Message], onChunk func(string)) (string, error) {
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return builder.String(), nil
		}
		if err != nil {
			return builder.String(), err
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		builder.WriteString(chunk.Content)
		if onChunk != nil {
			onChunk(chunk.Content)
		}
	}
}

func (s *Service) chatInput(history []chat.Message, message string) map[string]any {
	return map[string]any{
		"system":  s.cfg.SystemPrompt,
		"history": historyMessages(history, s.cfg.HistoryLimit),
		"query":   message,
	}
}

func historyMessages(messages []chat.Message, limit int) []*schema.Message {
	if len(messages) == 0 || limit <= 0 {
		return []*schema.Message{}
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.RoleAI:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}
