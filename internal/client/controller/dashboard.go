package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/aserras/web/backend/internal/client/gateway"
	"github.com/aserras/web/backend/internal/client/pageconfig"
	"github.com/aserras/web/backend/internal/extract"
)

// Stats summarise a conversation history.
type Stats struct {
	Total      int
	Prompts    int
	Replies    int
	LastActive string
}

// ComputeStats counts messages by role; LastActive is the latest timestamp seen.
// Timestamps are compared as instants when they parse as RFC 3339, else as
// strings, and a parsed timestamp always wins over an unparsed one.
func ComputeStats(messages []extract.ChatMessage) Stats {
	var (
		s      Stats
		latest time.Time
	)
	for _, m := range messages {
		s.Total++
		if m.Role == RoleUser {
			s.Prompts++
		} else {
			s.Replies++
		}
		if m.Timestamp == "" {
			continue
		}
		if at, err := time.Parse(time.RFC3339Nano, m.Timestamp); err == nil {
			if latest.IsZero() || at.After(latest) {
				latest = at
				s.LastActive = m.Timestamp
			}
		} else if latest.IsZero() && m.Timestamp > s.LastActive {
			s.LastActive = m.Timestamp
		}
	}
	return s
}

// HistoryState is the history panel.
type HistoryState struct {
	Items   []extract.ChatMessage
	Stats   Stats
	Loaded  bool
	Pending bool
	Error   string
	// Retryable marks errors worth offering a retry for.
	Retryable bool
}

// History drives the history page.
type History struct {
	deps Deps
	m    model[HistoryState]
}

func NewHistory(deps Deps) *History { return &History{deps: deps} }

func (c *History) State() HistoryState { return c.m.snapshot() }

func (c *History) Subscribe(fn func(HistoryState)) { c.m.subscribe(fn) }

func (c *History) Reset() { c.m.reset(HistoryState{}) }

// Load fetches the history. On failure the previous items and stats stay.
func (c *History) Load(ctx context.Context) error {
	if err := c.deps.guard(); err != nil {
		return err
	}
	gen, ok := c.m.begin(func(s *HistoryState) {
		s.Pending = true
		s.Error = ""
		s.Retryable = false
	})
	if !ok {
		return ErrBusy
	}

	payload, err := c.deps.Requests.RequestEndpoint(ctx, pageconfig.EndpointChatHistory, authed(http.MethodGet, nil))

	var applied bool
	if err != nil {
		msg := c.deps.inlineError(err)
		applied = c.m.finish(gen, func(s *HistoryState) {
			s.Pending = false
			s.Error = msg
			s.Retryable = retryable(err)
		})
	} else {
		items := extract.Messages(payload)
		applied = c.m.finish(gen, func(s *HistoryState) {
			s.Pending = false
			s.Loaded = true
			s.Items = items
			s.Stats = ComputeStats(items)
		})
	}
	return settle(applied, err)
}

// DashboardState is the account overview.
type DashboardState struct {
	Plan    string
	Status  string
	Stats   Stats
	Pending bool
	Error   string
}

// Dashboard combines subscription status with usage stats.
type Dashboard struct {
	deps Deps
	m    model[DashboardState]
}

func NewDashboard(deps Deps) *Dashboard { return &Dashboard{deps: deps} }

func (c *Dashboard) State() DashboardState { return c.m.snapshot() }

func (c *Dashboard) Subscribe(fn func(DashboardState)) { c.m.subscribe(fn) }

func (c *Dashboard) Reset() { c.m.reset(DashboardState{}) }

// Load fetches the account status and then the history stats. A failed
// status leaves the plan as it was; a failed history leaves the stats.
func (c *Dashboard) Load(ctx context.Context) error {
	if err := c.deps.guard(); err != nil {
		return err
	}
	gen, ok := c.m.begin(func(s *DashboardState) {
		s.Pending = true
		s.Error = ""
	})
	if !ok {
		return ErrBusy
	}

	var plan, status string
	account, err := c.deps.Requests.RequestEndpoint(ctx, pageconfig.EndpointAccountStatus, authed(http.MethodGet, nil))
	if err == nil {
		plan, status = accountPlan(account)
	}

	var history gateway.Payload
	if err == nil || !gateway.IsSessionExpired(err) {
		var herr error
		history, herr = c.deps.Requests.RequestEndpoint(ctx, pageconfig.EndpointChatHistory, authed(http.MethodGet, nil))
		if err == nil {
			err = herr
		}
	}

	var msg string
	if err != nil {
		msg = c.deps.inlineError(err)
	}
	applied := c.m.finish(gen, func(s *DashboardState) {
		s.Pending = false
		s.Error = msg
		if plan != "" {
			s.Plan = plan
			s.Status = status
		}
		if history != nil {
			s.Stats = ComputeStats(extract.Messages(history))
		}
	})
	return settle(applied, err)
}

func accountPlan(payload gateway.Payload) (plan, status string) {
	plan = extract.First(payload, extract.Field("plan"), extract.Nested("subscription", "plan"), extract.Nested("data", "plan"))
	status = extract.First(payload, extract.Field("status"), extract.Nested("subscription", "status"))
	if plan == "" {
		plan = "free"
	}
	if status == "" {
		status = "inactive"
		if active, ok := payload["active"].(bool); ok && active {
			status = "active"
		}
	}
	return plan, status
}
