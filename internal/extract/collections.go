package extract

import "strings"

// ChatMessage is a chat turn recovered from an upstream payload.
type ChatMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

var messageListKeys = []string{"messages", "history", "items", "data"}

// Messages returns the chat history list carried by payload.
//
// Roles are normalised to "user" or "ai"; entries without text are skipped.
func Messages(payload map[string]any) []ChatMessage {
	for _, key := range messageListKeys {
		items, ok := payload[key].([]any)
		if !ok {
			continue
		}
		out := make([]ChatMessage, 0, len(items))
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			text := First(entry, Field("text"), Field("content"), Field("message"))
			if text == "" {
				continue
			}
			out = append(out, ChatMessage{
				Role:      NormalizeRole(First(entry, Field("role"), Field("sender"))),
				Text:      text,
				Timestamp: First(entry, Field("timestamp"), Field("createdAt"), Field("created_at")),
			})
		}
		return out
	}
	return nil
}

// NormalizeRole folds upstream role names onto "user" and "ai".
func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return "user"
	default:
		return "ai"
	}
}

var imageListKeys = []string{"images", "urls", "data", "output"}

// Images returns displayable image sources carried by payload.
//
// Plain URLs are returned as-is; base64 payloads become data URIs.
func Images(payload map[string]any) []string {
	var out []string
	for _, key := range imageListKeys {
		items, ok := payload[key].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			if src := imageSource(item); src != "" {
				out = append(out, src)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	for _, key := range []string{"image_url", "imageUrl", "url", "image"} {
		if src := imageSource(payload[key]); src != "" {
			return []string{src}
		}
	}
	if b64 := First(payload, Field("b64_json"), Field("base64")); b64 != "" {
		return []string{dataURI(b64)}
	}
	return nil
}

func imageSource(v any) string {
	switch value := v.(type) {
	case string:
		value = strings.TrimSpace(value)
		if value == "" {
			return ""
		}
		if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") ||
			strings.HasPrefix(value, "/") || strings.HasPrefix(value, "data:") {
			return value
		}
		return dataURI(value)
	case map[string]any:
		if url := First(value, Field("url"), Field("image_url"), Field("src")); url != "" {
			return url
		}
		if b64 := First(value, Field("b64_json"), Field("base64")); b64 != "" {
			return dataURI(b64)
		}
	}
	return ""
}

func dataURI(b64 string) string {
	return "data:image/png;base64," + b64
}
