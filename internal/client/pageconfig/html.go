package pageconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ParseHTML reads the injected JSON globals out of a rendered page.
// Missing or malformed blocks are left nil so Resolve falls back to defaults.
func ParseHTML(r io.Reader, origin string) (Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse page: %w", err)
	}

	blocks := make(map[string]string, 3)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			if id := attr(n, "id"); id != "" && n.FirstChild != nil {
				blocks[id] = n.FirstChild.Data
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page := Page{Origin: origin}
	if raw, ok := blocks[ConfigScriptID]; ok {
		var cfg RuntimeConfig
		if decode(raw, &cfg) {
			page.Config = &cfg
		}
	}
	if raw, ok := blocks[UIConfigScriptID]; ok {
		var ui UIConfig
		if decode(raw, &ui) {
			page.UI = &ui
		}
	}
	if raw, ok := blocks[UIStateScriptID]; ok {
		var state UIState
		if decode(raw, &state) {
			page.State = &state
		}
	}
	return page, nil
}

func decode(raw string, v any) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
