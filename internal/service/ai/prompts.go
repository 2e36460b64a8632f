package ai

import (
	"context"
	"strings"

	"github.com/aserras/web/backend/internal/model/chat"
)

const (
	echoPrefix   = "I'm capturing that now. Here's a quick insight: "
	echoMaxInput = 180
)

// Echo is the offline responder used when no model is configured.
type Echo struct{}

// Reply restates message, truncated to keep the reply short.
func (Echo) Reply(_ context.Context, _ []chat.Message, message string) (string, error) {
	return EchoReply(message), nil
}

// EchoReply builds the offline reply for message.
func EchoReply(message string) string {
	runes := []rune(message)
	if len(runes) <= echoMaxInput {
		return echoPrefix + message
	}
	return echoPrefix + string(runes[:echoMaxInput-3]) + "..."
}

func codeSystemPrompt(language string) string {
	var b strings.Builder
	b.WriteString("You are the Aserras automation studio. Return only source code, without explanations.")
	if language = strings.TrimSpace(language); language != "" {
		b.WriteString(" Write the solution in ")
		b.WriteString(language)
		b.WriteString(".")
	}
	return b.String()
}

// StripFences returns the body of the first fenced block in text, or text
// itself when there is none.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	body := text[start+3:]
	// drop the info string
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		return text
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimRight(body, "\n")
}
