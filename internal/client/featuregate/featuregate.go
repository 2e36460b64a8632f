// Package featuregate shows or hides optional page affordances (sign-in
// providers, payment methods) according to the resolved UI flags.
//
// Marked elements name their capability in an attribute; wrappers marked with
// data-feature-group are hidden when none of their marked descendants remain
// visible. Gating only affects presentation.
package featuregate

import (
	"sync"

	"github.com/aserras/web/backend/internal/client/dom"
	"github.com/aserras/web/backend/internal/client/pageconfig"
)

const (
	KindAuthProvider  = "auth-provider"
	KindPaymentMethod = "payment-method"

	AttrFeatureGroup = "data-feature-group"
)

// Kind describes one family of gated elements.
type Kind struct {
	// Attr is the marker attribute; its value is the capability key.
	Attr    string
	Enabled func(key string) bool
}

// Registry maps kind names to their marker and predicate.
type Registry map[string]Kind

// DefaultRegistry gates sign-in providers and payment methods on flags.
func DefaultRegistry(flags pageconfig.Flags) Registry {
	return Registry{
		KindAuthProvider: {
			Attr:    "data-auth-provider",
			Enabled: flags.AuthProviders.Has,
		},
		KindPaymentMethod: {
			Attr:    "data-payment-method",
			Enabled: flags.PaymentMethods.Has,
		},
	}
}

type marked struct {
	el   *dom.Element
	kind string
	key  string
}

// Gate holds the indexed elements of one page.
type Gate struct {
	mu       sync.Mutex
	registry Registry
	marked   []marked
	wrappers []*dom.Element
}

// New builds a Gate over registry.
func New(registry Registry) *Gate {
	return &Gate{registry: registry}
}

// Index records the marked elements and wrappers under root, replacing any
// previous index.
func (g *Gate) Index(root *dom.Element) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.marked = g.marked[:0]
	g.wrappers = g.wrappers[:0]
	if root == nil {
		return
	}

	root.Walk(func(el *dom.Element) bool {
		if el.Tag == "" {
			return false
		}
		for name, kind := range g.registry {
			if key, ok := el.Attr(kind.Attr); ok {
				g.marked = append(g.marked, marked{el: el, kind: name, key: key})
			}
		}
		if _, ok := el.Attr(AttrFeatureGroup); ok {
			g.wrappers = append(g.wrappers, el)
		}
		return true
	})
}

// Apply sets the visibility of every indexed element. Calling it repeatedly
// yields the same tree.
func (g *Gate) Apply() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, m := range g.marked {
		m.el.SetVisible(g.enabled(m.kind, m.key))
	}

	for _, wrapper := range g.wrappers {
		visible := 0
		for _, m := range g.marked {
			if !m.el.Hidden && within(m.el, wrapper) {
				visible++
			}
		}
		wrapper.SetVisible(visible > 0)
	}
}

// Refresh re-indexes root and applies the flags, for content inserted after
// the initial pass.
func (g *Gate) Refresh(root *dom.Element) {
	g.Index(root)
	g.Apply()
}

// Enabled reports whether key of kind passes the flags. Unknown kinds are not gated.
func (g *Gate) Enabled(kind, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled(kind, key)
}

func (g *Gate) enabled(kind, key string) bool {
	k, ok := g.registry[kind]
	if !ok || k.Enabled == nil {
		return true
	}
	return k.Enabled(key)
}

func within(el, ancestor *dom.Element) bool {
	for n := el.Parent; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}
