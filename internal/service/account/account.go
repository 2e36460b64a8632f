// Package account issues and reads bearer tokens and keeps per-account
// preferences in memory.
package account

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aserras/web/backend/internal/config"
)

const (
	MinLoginPassword  = 6
	MinSignupPassword = 8

	DashboardRedirect = "/dashboard"
	TokenType         = "bearer"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrNoEmail      = errors.New("token does not carry an email claim")
)

// ValidationError is a request the account service refuses to process.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// User is the public part of an account.
type User struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
	Theme    string `json:"theme,omitempty"`
}

// Session is the answer to a successful login or signup.
type Session struct {
	Status         string    `json:"status"`
	Message        string    `json:"message"`
	Redirect       string    `json:"redirect"`
	Token          string    `json:"token"`
	TokenType      string    `json:"tokenType"`
	SessionExpires time.Time `json:"sessionExpires"`
	User           User      `json:"user"`
}

// Identity is the caller behind a bearer token.
type Identity struct {
	Email string
	Name  string
	Token string
	// Verified is true when the token signature was checked locally.
	Verified bool
}

// Owner keys per-account state; tokens without an email fall back to the token.
func (id Identity) Owner() string {
	if id.Email != "" {
		return id.Email
	}
	return id.Token
}

type claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Service is the account store of local mode.
type Service struct {
	secret    []byte
	loginTTL  time.Duration
	signupTTL time.Duration
	// verify is false when tokens come from the Brain and cannot be checked here.
	verify bool
	now    func() time.Time

	mu    sync.RWMutex
	users map[string]User
}

// NewService creates the account store. verify selects local token checks.
func NewService(cfg config.SessionConfig, verify bool) *Service {
	return &Service{
		secret:    cfg.Secret,
		loginTTL:  cfg.LoginTTL,
		signupTTL: cfg.SignupTTL,
		verify:    verify,
		now:       time.Now,
		users:     make(map[string]User),
	}
}

// Login opens a local session. Any well-formed credentials are accepted.
func (s *Service) Login(email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Session{}, &ValidationError{Message: "Email is required"}
	}
	if len(strings.TrimSpace(password)) < MinLoginPassword {
		return Session{}, &ValidationError{Message: "Password must be at least 6 characters long"}
	}

	user := s.remember(User{Email: email, Name: FriendlyName(email, "")})
	return s.open(user, s.loginTTL, fmt.Sprintf("Welcome back, %s.", user.Name))
}

// Signup creates a local account and opens a session for it.
func (s *Service) Signup(fullName, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Session{}, &ValidationError{Message: "Email is required"}
	}
	if len(strings.TrimSpace(password)) < MinSignupPassword {
		return Session{}, &ValidationError{Message: "Choose a password that is at least 8 characters long"}
	}

	name := strings.TrimSpace(fullName)
	if name == "" {
		name = FriendlyName(email, "")
	}
	user := s.remember(User{Email: email, Name: name})
	return s.open(user, s.signupTTL, fmt.Sprintf("Your workspace is ready, %s.", user.Name))
}

func (s *Service) open(user User, ttl time.Duration, message string) (Session, error) {
	now := s.now()
	expires := now.Add(ttl)
	token, err := s.Issue(user, now, expires)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Status:         "ok",
		Message:        message,
		Redirect:       DashboardRedirect,
		Token:          token,
		TokenType:      TokenType,
		SessionExpires: expires.UTC(),
		User:           user,
	}, nil
}

// Issue signs a token for user valid until expires.
func (s *Service) Issue(user User, issued, expires time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: user.Email,
		Name:  user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			ID:        "session_" + uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Resolve identifies the caller behind a raw Authorization header value.
func (s *Service) Resolve(header string) (Identity, error) {
	token, ok := BearerToken(header)
	if !ok {
		return Identity{}, ErrMissingToken
	}

	if !s.verify {
		id := Identity{Token: token}
		if email, err := EmailFromToken(token); err == nil {
			id.Email = email
		}
		return id, nil
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	email := normalizeEmail(c.Email)
	if email == "" {
		email = normalizeEmail(c.Subject)
	}
	if email == "" {
		return Identity{}, ErrNoEmail
	}
	return Identity{Email: email, Name: c.Name, Token: token, Verified: true}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// EmailFromToken reads the account email from a JWT without checking its
// signature. Claims are tried in order: email, sub, username, user.
func EmailFromToken(token string) (string, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	for _, key := range []string{"email", "sub", "username", "user"} {
		if value, ok := mapClaims[key].(string); ok {
			if value = normalizeEmail(value); value != "" {
				return value, nil
			}
		}
	}
	return "", ErrNoEmail
}

// User returns the stored preferences for email.
func (s *Service) User(email string) User {
	email = normalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[email]; ok {
		return user
	}
	return User{Email: email, Name: FriendlyName(email, "")}
}

// UpdateProfile changes the display name and model preferences.
func (s *Service) UpdateProfile(email, name, language, model string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, &ValidationError{Message: "Name is required"}
	}

	user := s.User(email)
	user.Name = name
	if language = strings.TrimSpace(language); language != "" {
		user.Language = language
	}
	if model = strings.TrimSpace(model); model != "" {
		user.Model = model
	}
	return s.remember(user), nil
}

// SetTheme stores the account's theme preference.
func (s *Service) SetTheme(email, theme string) (string, error) {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if theme != "light" && theme != "dark" {
		return "", &ValidationError{Message: "Theme must be light or dark"}
	}
	user := s.User(email)
	user.Theme = theme
	s.remember(user)
	return theme, nil
}

func (s *Service) remember(user User) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[user.Email]; ok {
		if user.Language == "" {
			user.Language = existing.Language
		}
		if user.Model == "" {
			user.Model = existing.Model
		}
		if user.Theme == "" {
			user.Theme = existing.Theme
		}
	}
	s.users[user.Email] = user
	return user
}

// FriendlyName derives a display name from the local part of email:
// "jane.doe_smith@x" becomes "Jane Doe Smith".
func FriendlyName(email, fallback string) string {
	local, _, _ := strings.Cut(email, "@")
	local = strings.ReplaceAll(local, "_", " ")

	var parts []string
	for _, piece := range strings.FieldsFunc(local, func(r rune) bool { return r == '.' || unicode.IsSpace(r) }) {
		runes := []rune(piece)
		runes[0] = unicode.ToUpper(runes[0])
		parts = append(parts, string(runes))
	}
	if len(parts) == 0 {
		if fallback = strings.TrimSpace(fallback); fallback != "" {
			return fallback
		}
		return "Aserras member"
	}
	return strings.Join(parts, " ")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
