// Package session owns the authentication flag, bearer token and theme
// preference of the UI runtime and persists them through storage.Storage.
//
// Store is the only writer of those storage keys. Storage failures never
// surface to callers: the in-memory state stays authoritative and the failure
// is logged at debug level.
package session

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/client/storage"
	"github.com/aserras/web/backend/internal/logging"
)

// Storage keys.
const (
	KeyTheme     = "aserras-theme"
	KeyAuthState = "aserras-auth-state"
	KeyAuthToken = "aserras-auth-token"
)

// Theme values.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Session is a snapshot of the runtime's session state.
type Session struct {
	Authenticated bool
	Token         string
	Theme         string
}

// AuthOptions tune a SetAuthState transition.
type AuthOptions struct {
	// Token replaces the stored token when non-nil; an empty string clears it.
	Token *string
	// KeepToken retains the stored token on a signed-out transition.
	KeepToken bool
}

// WithToken is shorthand for AuthOptions{Token: &token}.
func WithToken(token string) AuthOptions {
	return AuthOptions{Token: &token}
}

// Listener observes every state transition.
type Listener func(Session)

// Store holds the session and mirrors it into persistent storage.
type Store struct {
	mu        sync.RWMutex
	backend   storage.Storage
	state     Session
	listeners []Listener
	log       *zap.Logger
}

// Options configure Load.
type Options struct {
	DefaultTheme string
	// InitialAuthenticated is the page-injected auth status, honoured like the legacy flag.
	InitialAuthenticated bool
}

// Load restores the session from backend. Unreadable or corrupt values fall
// back to defaults. A stored token always means signed in; without one the
// legacy flag (or the page's initial state) may still report signed in.
func Load(backend storage.Storage, opts Options) *Store {
	if backend == nil {
		backend = storage.Unavailable{}
	}
	s := &Store{backend: backend, log: logging.Named("session")}

	defaultTheme := normalizeTheme(opts.DefaultTheme)
	if defaultTheme == "" {
		defaultTheme = ThemeDark
	}

	token := strings.TrimSpace(s.read(KeyAuthToken))
	legacy := s.read(KeyAuthState) == "true"
	theme := normalizeTheme(s.read(KeyTheme))
	if theme == "" {
		theme = defaultTheme
	}

	s.state = Session{
		Authenticated: token != "" || legacy || opts.InitialAuthenticated,
		Token:         token,
		Theme:         theme,
	}
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the stored bearer token, if any.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token, s.state.Token != ""
}

// IsAuthenticated reports the authenticated flag.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Authenticated
}

// Theme returns the theme preference.
func (s *Store) Theme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Theme
}

// Subscribe registers fn for every later transition and calls it once with
// the current state.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	current := s.state
	s.mu.Unlock()
	fn(current)
}

// SetAuthState is the single entry point for authentication transitions.
//
// After the call Authenticated == authenticated || (token != "" && !opts.KeepToken).
// A signed-out transition clears the token unless opts.KeepToken is set or a
// token is supplied explicitly.
func (s *Store) SetAuthState(authenticated bool, opts AuthOptions) Session {
	s.mu.Lock()
	token := s.state.Token
	switch {
	case opts.Token != nil:
		token = strings.TrimSpace(*opts.Token)
	case !authenticated && !opts.KeepToken:
		token = ""
	}

	s.state.Token = token
	s.state.Authenticated = authenticated || (token != "" && !opts.KeepToken)

	if token != "" {
		s.write(KeyAuthToken, token)
	} else {
		s.remove(KeyAuthToken)
	}
	if s.state.Authenticated {
		s.write(KeyAuthState, "true")
	} else {
		s.write(KeyAuthState, "false")
	}

	next, listeners := s.state, append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next
}

// SetTheme persists a theme preference; unknown values are ignored.
func (s *Store) SetTheme(theme string) (string, bool) {
	theme = normalizeTheme(theme)
	if theme == "" {
		return s.Theme(), false
	}

	s.mu.Lock()
	s.state.Theme = theme
	s.write(KeyTheme, theme)
	next, listeners := s.state, append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return theme, true
}

func (s *Store) read(key string) string {
	value, ok, err := s.backend.Get(key)
	if err != nil {
		s.log.Debug("storage read failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return value
}

func (s *Store) write(key, value string) {
	if err := s.backend.Set(key, value); err != nil {
		s.log.Debug("storage write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) remove(key string) {
	if err := s.backend.Remove(key); err != nil {
		s.log.Debug("storage remove failed", zap.String("key", key), zap.Error(err))
	}
}

func normalizeTheme(theme string) string {
	switch strings.ToLower(strings.TrimSpace(theme)) {
	case ThemeLight:
		return ThemeLight
	case ThemeDark:
		return ThemeDark
	default:
		return ""
	}
}
