package auth

import (
	"sync"

	"github.com/aserras/web/backend/internal/client/dom"
	"github.com/aserras/web/backend/internal/client/session"
)

const (
	AttrAuthVisibility = "data-auth-visibility"
	AttrUserMenu       = "data-user-menu"
	AttrAuthState      = "data-auth-state"
)

// Binder keeps auth-dependent elements in step with the session.
//
// data-auth-visibility="authenticated" shows an element only when signed in,
// "guest" only when signed out. data-user-menu elements follow the signed-in
// state.
type Binder struct {
	mu   sync.Mutex
	root *dom.Element
}

// Bind subscribes a Binder for root to store; the tree is synced immediately.
func Bind(store *session.Store, root *dom.Element) *Binder {
	b := &Binder{root: root}
	store.Subscribe(func(s session.Session) { b.Sync(s.Authenticated) })
	return b
}

// Sync applies authenticated to the tree. It is idempotent.
func (b *Binder) Sync(authenticated bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.root == nil {
		return
	}

	state := "guest"
	if authenticated {
		state = "authenticated"
	}
	b.root.SetAttr(AttrAuthState, state)

	for _, el := range b.root.WithAttr(AttrAuthVisibility) {
		switch el.Attrs[AttrAuthVisibility] {
		case "authenticated", "signed-in", "user":
			el.SetVisible(authenticated)
		case "guest", "signed-out", "anonymous":
			el.SetVisible(!authenticated)
		}
	}
	for _, el := range b.root.WithAttr(AttrUserMenu) {
		el.SetVisible(authenticated)
	}
}
