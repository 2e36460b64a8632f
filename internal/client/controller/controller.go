// Package controller holds the per-page workspace controllers.
//
// Every controller follows one pattern: guard on authentication, render an
// optimistic update, issue a gateway request, then reconcile with the answer
// or roll back to an inline error. State lives in the controller and is
// published to subscribers; rendering is the caller's concern.
package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/aserras/web/backend/internal/client/gateway"
)

var (
	// ErrBusy is returned when a submission is already in flight; nothing changes.
	ErrBusy = errors.New("a submission is already in flight")
	// ErrStale is returned when the view was reset while the request was out;
	// the answer was discarded.
	ErrStale = errors.New("response discarded: view changed")
)

// LoginPath is where unauthenticated users are sent.
const LoginPath = "/login"

// Requester performs logical endpoint requests.
type Requester interface {
	RequestEndpoint(ctx context.Context, name string, opts gateway.Options) (gateway.Payload, error)
}

// SessionState reports whether the user is signed in.
type SessionState interface {
	IsAuthenticated() bool
}

// Navigator changes the current page.
type Navigator interface {
	Navigate(path string)
}

// Deps are shared by every controller.
type Deps struct {
	Requests Requester
	Session  SessionState
	Nav      Navigator
}

// InputError rejects a submission locally.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }
func (e *InputError) UserMessage() string { return e.Message }

// model is the state, subscriber list and submission guards of one controller.
// Each form on the page has its own in-flight slot; reset invalidates them all.
type model[S any] struct {
	mu        sync.Mutex
	state     S
	listeners []func(S)
	busy      map[string]bool
	gen       uint64
}

// defaultSlot guards controllers with a single form.
const defaultSlot = ""

func (m *model[S]) snapshot() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *model[S]) subscribe(fn func(S)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	state := m.state
	m.mu.Unlock()
	fn(state)
}

func (m *model[S]) update(fn func(*S)) {
	m.mu.Lock()
	fn(&m.state)
	state, listeners := m.state, m.listeners
	m.mu.Unlock()
	for _, l := range listeners {
		l(state)
	}
}

// begin claims the in-flight slot and applies the optimistic update.
func (m *model[S]) begin(optimistic func(*S)) (uint64, bool) {
	return m.beginSlot(defaultSlot, optimistic)
}

func (m *model[S]) beginSlot(slot string, optimistic func(*S)) (uint64, bool) {
	m.mu.Lock()
	if m.busy[slot] {
		m.mu.Unlock()
		return 0, false
	}
	if m.busy == nil {
		m.busy = make(map[string]bool)
	}
	m.busy[slot] = true
	gen := m.gen
	if optimistic != nil {
		optimistic(&m.state)
	}
	state, listeners := m.state, m.listeners
	m.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
	return gen, true
}

// finish applies fn only if gen is still current and releases the slot.
func (m *model[S]) finish(gen uint64, fn func(*S)) bool {
	return m.finishSlot(defaultSlot, gen, fn)
}

func (m *model[S]) finishSlot(slot string, gen uint64, fn func(*S)) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	delete(m.busy, slot)
	fn(&m.state)
	state, listeners := m.state, m.listeners
	m.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
	return true
}

// reset invalidates outstanding submissions and replaces the state.
func (m *model[S]) reset(state S) {
	m.mu.Lock()
	m.gen++
	m.busy = nil
	m.state = state
	listeners := m.listeners
	m.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

// guard sends signed-out users to the login page.
func (d Deps) guard() error {
	if d.Session != nil && d.Session.IsAuthenticated() {
		return nil
	}
	d.navigate(LoginPath)
	return &gateway.SessionExpiredError{}
}

func (d Deps) navigate(path string) {
	if d.Nav != nil {
		d.Nav.Navigate(path)
	}
}

// inlineError returns the message to show for err. Session expiry redirects.
func (d Deps) inlineError(err error) string {
	if gateway.IsSessionExpired(err) {
		d.navigate(LoginPath)
	}
	return gateway.UserMessage(err)
}

// settle reports err when the request failed, else ErrStale if the answer was
// discarded.
func settle(applied bool, err error) error {
	if err != nil {
		return err
	}
	if !applied {
		return ErrStale
	}
	return nil
}

func authed(method string, body any) gateway.Options {
	return gateway.Options{Method: method, Body: body, Auth: true}
}

// retryable reports whether the failure is worth a retry button.
func retryable(err error) bool {
	var netErr *gateway.NetworkError
	var serverErr *gateway.ServerError
	return errors.As(err, &netErr) || errors.As(err, &serverErr)
}
