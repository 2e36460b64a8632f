// Package extract pulls well-known fields out of loosely shaped JSON payloads.
//
// Upstream services answer with a handful of competing shapes for the same
// datum (a token may arrive as "token", "access_token" or nested under
// "data"). Each datum has one ordered list of extractors below; callers use
// the helper for the datum instead of probing keys inline.
package extract

import (
	"strings"
)

// Extractor returns a non-empty string found in payload.
type Extractor func(payload map[string]any) (string, bool)

// First runs extractors in order and returns the first non-empty match.
func First(payload map[string]any, extractors ...Extractor) string {
	if payload == nil {
		return ""
	}
	for _, fn := range extractors {
		if value, ok := fn(payload); ok {
			return value
		}
	}
	return ""
}

// Field matches a top-level string field.
func Field(key string) Extractor {
	return func(payload map[string]any) (string, bool) {
		return stringValue(payload[key])
	}
}

// Nested matches a string at a dotted path of objects.
func Nested(path ...string) Extractor {
	return func(payload map[string]any) (string, bool) {
		current := payload
		for i, key := range path {
			if i == len(path)-1 {
				return stringValue(current[key])
			}
			next, ok := current[key].(map[string]any)
			if !ok {
				return "", false
			}
			current = next
		}
		return "", false
	}
}

// TokenExtractors lists accepted locations of an authentication token.
var TokenExtractors = []Extractor{
	Field("token"),
	Field("access_token"),
	Field("accessToken"),
	Field("jwt"),
	Nested("data", "token"),
	Nested("data", "access_token"),
	Nested("data", "accessToken"),
	Nested("session", "token"),
}

// RedirectExtractors lists accepted locations of a post-auth redirect target.
var RedirectExtractors = []Extractor{
	Field("redirect"),
	Field("redirectUrl"),
	Field("redirect_url"),
	Field("next"),
	Nested("data", "redirect"),
}

// MessageExtractors lists accepted locations of a human readable message.
var MessageExtractors = []Extractor{
	Field("detail"),
	Field("message"),
	Field("error"),
	Nested("error", "message"),
	Field("statusText"),
}

// ReplyExtractors lists accepted locations of an assistant reply.
var ReplyExtractors = []Extractor{
	Field("reply"),
	Field("response"),
	Field("answer"),
	Field("output"),
	Field("text"),
	Field("content"),
	Nested("data", "reply"),
	Nested("message", "text"),
	Nested("message", "content"),
	lastAIMessage,
}

// CodeExtractors lists accepted locations of generated code.
var CodeExtractors = []Extractor{
	Field("code"),
	Field("script"),
	Field("text"),
	Field("content"),
	Field("output"),
	Nested("data", "code"),
}

// Token returns the authentication token carried by payload.
func Token(payload map[string]any) string {
	return First(payload, TokenExtractors...)
}

// Redirect returns the redirect target carried by payload.
func Redirect(payload map[string]any) string {
	return First(payload, RedirectExtractors...)
}

// Message returns a human readable message carried by payload.
func Message(payload map[string]any) string {
	return First(payload, MessageExtractors...)
}

// Reply returns the assistant reply carried by payload.
func Reply(payload map[string]any) string {
	return First(payload, ReplyExtractors...)
}

// Code returns generated source carried by payload.
func Code(payload map[string]any) string {
	return First(payload, CodeExtractors...)
}

func lastAIMessage(payload map[string]any) (string, bool) {
	messages := Messages(payload)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "ai" && messages[i].Text != "" {
			return messages[i].Text, true
		}
	}
	return "", false
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
