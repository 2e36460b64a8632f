// Package runtime assembles the UI runtime for one page: configuration,
// session, toasts, gateway, auth machine, feature gate and controllers.
// Everything is constructed here and passed by reference; there are no
// package-level globals.
package runtime

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/aserras/web/backend/internal/client/auth"
	"github.com/aserras/web/backend/internal/client/controller"
	"github.com/aserras/web/backend/internal/client/dom"
	"github.com/aserras/web/backend/internal/client/featuregate"
	"github.com/aserras/web/backend/internal/client/gateway"
	"github.com/aserras/web/backend/internal/client/notify"
	"github.com/aserras/web/backend/internal/client/pageconfig"
	"github.com/aserras/web/backend/internal/client/session"
	"github.com/aserras/web/backend/internal/client/storage"
	"github.com/aserras/web/backend/internal/logging"
)

// Options configure Boot. Zero values select in-memory storage, a discarded
// toast surface and a recording navigator.
type Options struct {
	Page       pageconfig.Page
	Storage    storage.Storage
	Surface    notify.Surface
	Navigator  auth.Navigator
	HTTPClient *http.Client
	// Document is gated and bound to the session when present.
	Document *dom.Element
	// ChatModel is sent with chat messages when set.
	ChatModel string
}

// Runtime is a booted page.
type Runtime struct {
	Config   pageconfig.Resolved
	Session  *session.Store
	Notifier *notify.Notifier
	Gateway  *gateway.Gateway
	Auth     *auth.Machine
	Gate     *featuregate.Gate
	Binder   *auth.Binder
	Location *Location
	// Document is nil unless the runtime was booted with markup.
	Document *dom.Element

	Chat      *controller.Chat
	Image     *controller.Image
	Code      *controller.Code
	History   *controller.History
	Dashboard *controller.Dashboard
	Checkout  *controller.Checkout
	Settings  *controller.Settings
}

// Boot wires a Runtime.
func Boot(opts Options) *Runtime {
	cfg := pageconfig.Resolve(pageconfig.Defaults(), opts.Page)

	backend := opts.Storage
	if backend == nil {
		backend = storage.NewMemory()
	}
	store := session.Load(backend, session.Options{
		DefaultTheme:         cfg.DefaultTheme,
		InitialAuthenticated: cfg.InitialAuthenticated,
	})

	surface := opts.Surface
	if surface == nil {
		surface = notify.WriterSurface{W: io.Discard}
	}
	notifier := notify.New(surface, notify.Options{})

	rt := &Runtime{
		Config:   cfg,
		Session:  store,
		Notifier: notifier,
		Location: &Location{},
		Document: opts.Document,
	}

	var nav auth.Navigator = rt.Location
	if opts.Navigator != nil {
		nav = navigators{rt.Location, opts.Navigator}
	}

	gwOpts := []gateway.Option{
		gateway.WithNotifier(notifier),
		// rt.Auth is assigned below; the hook only runs after a request.
		gateway.WithExpiryHandler(func(keepToken bool) { rt.Auth.ForceExpire(keepToken) }),
	}
	if opts.HTTPClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(opts.HTTPClient))
	}
	rt.Gateway = gateway.New(cfg, store, gwOpts...)
	rt.Auth = auth.New(store, rt.Gateway, nav, notifier)
	rt.Gate = featuregate.New(featuregate.DefaultRegistry(cfg.Flags))

	deps := controller.Deps{Requests: rt.Gateway, Session: store, Nav: nav}
	rt.Chat = controller.NewChat(deps, opts.ChatModel)
	rt.Image = controller.NewImage(deps)
	rt.Code = controller.NewCode(deps)
	rt.History = controller.NewHistory(deps)
	rt.Dashboard = controller.NewDashboard(deps)
	rt.Checkout = controller.NewCheckout(deps, rt.Gate)
	rt.Settings = controller.NewSettings(deps, store)

	if opts.Document != nil {
		rt.Gate.Refresh(opts.Document)
		rt.Binder = auth.Bind(store, opts.Document)
	}

	var wasAuthenticated atomic.Bool
	wasAuthenticated.Store(store.IsAuthenticated())
	store.Subscribe(func(s session.Session) {
		if wasAuthenticated.Swap(s.Authenticated) && !s.Authenticated {
			rt.resetWorkspaces()
		}
	})

	notifier.Ready()
	logging.Named("runtime").Debug("booted")
	return rt
}

// BootHTML boots from a rendered page: the injected globals configure the
// runtime and the markup becomes the gated document.
func BootHTML(r io.Reader, origin string, opts Options) (*Runtime, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	page, err := pageconfig.ParseHTML(bytes.NewReader(raw), origin)
	if err != nil {
		return nil, err
	}
	doc, err := dom.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	opts.Page = page
	opts.Document = doc
	return Boot(opts), nil
}

func (rt *Runtime) resetWorkspaces() {
	rt.Chat.Reset()
	rt.Image.Reset()
	rt.Code.Reset()
	rt.History.Reset()
	rt.Dashboard.Reset()
	rt.Checkout.Reset()
	rt.Settings.Reset()
}

// Location records navigations.
type Location struct {
	mu      sync.Mutex
	history []string
}

func (l *Location) Navigate(path string) {
	l.mu.Lock()
	l.history = append(l.history, path)
	l.mu.Unlock()
}

// Current is the last navigation target, or "" before any.
func (l *Location) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.history) == 0 {
		return ""
	}
	return l.history[len(l.history)-1]
}

// History returns every navigation in order.
func (l *Location) History() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.history...)
}

type navigators []auth.Navigator

func (ns navigators) Navigate(path string) {
	for _, n := range ns {
		n.Navigate(path)
	}
}
