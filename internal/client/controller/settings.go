package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/aserras/web/backend/internal/client/pageconfig"
	"github.com/aserras/web/backend/internal/extract"
)

// ThemeStore persists the local theme preference.
type ThemeStore interface {
	Theme() string
	SetTheme(theme string) (string, bool)
}

// SettingsState is the settings page.
type SettingsState struct {
	Name    string
	Email   string
	Theme   string
	Saved   string
	Pending bool
	Error   string
}

// Settings saves the profile and the theme.
type Settings struct {
	deps   Deps
	themes ThemeStore
	m      model[SettingsState]
}

const themeSlot = "theme"

func NewSettings(deps Deps, themes ThemeStore) *Settings {
	c := &Settings{deps: deps, themes: themes}
	c.m.state = c.initial()
	return c
}

func (c *Settings) State() SettingsState { return c.m.snapshot() }

func (c *Settings) Subscribe(fn func(SettingsState)) { c.m.subscribe(fn) }

// Reset drops the profile and discards answers still in flight. The local
// theme survives since it is a device preference.
func (c *Settings) Reset() { c.m.reset(c.initial()) }

func (c *Settings) initial() SettingsState {
	var s SettingsState
	if c.themes != nil {
		s.Theme = c.themes.Theme()
	}
	return s
}

// SaveProfile updates the display name and email. The form keeps the submitted
// values on failure so the user can retry.
func (c *Settings) SaveProfile(ctx context.Context, name, email string) error {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" && email == "" {
		return &InputError{Message: "Nothing to update."}
	}
	if email != "" && !strings.Contains(email, "@") {
		return &InputError{Message: "Enter a valid email address."}
	}
	if err := c.deps.guard(); err != nil {
		return err
	}

	var prevName, prevEmail string
	gen, ok := c.m.begin(func(s *SettingsState) {
		prevName, prevEmail = s.Name, s.Email
		if name != "" {
			s.Name = name
		}
		if email != "" {
			s.Email = email
		}
		s.Pending = true
		s.Saved = ""
		s.Error = ""
	})
	if !ok {
		return ErrBusy
	}

	body := map[string]string{}
	if name != "" {
		body["name"] = name
	}
	if email != "" {
		body["email"] = email
	}
	payload, err := c.deps.Requests.RequestEndpoint(ctx, pageconfig.EndpointSettingsProfile, authed(http.MethodPost, body))

	var applied bool
	if err != nil {
		msg := c.deps.inlineError(err)
		applied = c.m.finish(gen, func(s *SettingsState) {
			s.Name, s.Email = prevName, prevEmail
			s.Pending = false
			s.Error = msg
		})
	} else {
		saved := extract.Message(payload)
		if saved == "" {
			saved = "Profile updated."
		}
		applied = c.m.finish(gen, func(s *SettingsState) {
			s.Pending = false
			s.Saved = saved
		})
	}
	return settle(applied, err)
}

// SetTheme applies theme locally at once and then syncs it to the account.
// The local preference is kept even when the sync fails. While a sync is out a
// second change is rejected with ErrBusy.
func (c *Settings) SetTheme(ctx context.Context, theme string) error {
	if c.themes == nil {
		return &InputError{Message: "Themes are unavailable."}
	}
	gen, ok := c.m.beginSlot(themeSlot, nil)
	if !ok {
		return ErrBusy
	}
	applied, valid := c.themes.SetTheme(theme)
	if !valid {
		c.m.finishSlot(themeSlot, gen, func(*SettingsState) {})
		return &InputError{Message: "Unknown theme."}
	}
	c.m.update(func(s *SettingsState) {
		s.Theme = applied
		s.Error = ""
	})

	if c.deps.Session == nil || !c.deps.Session.IsAuthenticated() {
		c.m.finishSlot(themeSlot, gen, func(*SettingsState) {})
		return nil
	}

	_, err := c.deps.Requests.RequestEndpoint(ctx, pageconfig.EndpointSettingsTheme,
		authed(http.MethodPost, map[string]string{"theme": applied}))
	var msg string
	if err != nil {
		msg = c.deps.inlineError(err)
	}
	done := c.m.finishSlot(themeSlot, gen, func(s *SettingsState) {
		if err != nil {
			s.Error = msg
		}
	})
	return settle(done, err)
}
