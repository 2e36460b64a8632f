// Package notify implements the toast surface used to report connectivity and
// session problems. Toasts of one category are rate limited: after a toast is
// accepted, further toasts in that category are dropped until the cooldown
// elapses.
package notify

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Variant is the visual style of a toast.
type Variant string

const (
	VariantError Variant = "error"
	VariantInfo  Variant = "info"
)

// Categories used by the runtime.
const (
	CategoryService = "service"
	CategorySession = "session"
	CategoryInfo    = "info"
)

const (
	DefaultCooldown   = 15 * time.Second
	DefaultMinVisible = 4500 * time.Millisecond
)

// Toast is one transient notification.
type Toast struct {
	ID       int
	Message  string
	Variant  Variant
	Category string
	Timeout  time.Duration
}

// Surface renders toasts. Show may be called for several toasts before any
// Dismiss; implementations stack them.
type Surface interface {
	Show(Toast)
	Dismiss(id int)
}

// Options configure a Notifier. Zero values select the defaults.
type Options struct {
	Cooldown   time.Duration
	MinVisible time.Duration
	Now        func() time.Time
	// After schedules fn after d; defaults to time.AfterFunc.
	After func(d time.Duration, fn func())
}

// Notifier queues, rate limits and expires toasts.
type Notifier struct {
	mu         sync.Mutex
	surface    Surface
	cooldown   time.Duration
	minVisible time.Duration
	now        func() time.Time
	after      func(time.Duration, func())

	ready    bool
	queue    []Toast
	lastSeen map[string]time.Time
	active   map[int]Toast
	nextID   int
}

// New returns a Notifier rendering onto surface. The surface is not ready
// until Ready is called; toasts accepted before that are queued.
func New(surface Surface, opts Options) *Notifier {
	n := &Notifier{
		surface:    surface,
		cooldown:   opts.Cooldown,
		minVisible: opts.MinVisible,
		now:        opts.Now,
		after:      opts.After,
		lastSeen:   make(map[string]time.Time),
		active:     make(map[int]Toast),
	}
	if n.cooldown <= 0 {
		n.cooldown = DefaultCooldown
	}
	if n.minVisible <= 0 {
		n.minVisible = DefaultMinVisible
	}
	if n.now == nil {
		n.now = time.Now
	}
	if n.after == nil {
		n.after = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	return n
}

// Notify shows an error toast in category unless one was accepted within the
// cooldown window. It reports whether the toast was accepted.
func (n *Notifier) Notify(category, message string) bool {
	return n.push(category, message, VariantError)
}

// Info shows an informational toast, rate limited under CategoryInfo.
func (n *Notifier) Info(message string) bool {
	return n.push(CategoryInfo, message, VariantInfo)
}

// Ready marks the surface ready and flushes queued toasts. Later calls are no-ops.
func (n *Notifier) Ready() {
	n.mu.Lock()
	if n.ready {
		n.mu.Unlock()
		return
	}
	n.ready = true
	queued := n.queue
	n.queue = nil
	n.mu.Unlock()

	for _, toast := range queued {
		n.show(toast)
	}
}

// Active returns the toasts currently on screen.
func (n *Notifier) Active() []Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Toast, 0, len(n.active))
	for _, toast := range n.active {
		out = append(out, toast)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (n *Notifier) push(category, message string, variant Variant) bool {
	if message == "" {
		return false
	}

	n.mu.Lock()
	now := n.now()
	if last, ok := n.lastSeen[category]; ok && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		return false
	}
	n.lastSeen[category] = now
	n.nextID++
	toast := Toast{
		ID:       n.nextID,
		Message:  message,
		Variant:  variant,
		Category: category,
		Timeout:  n.minVisible,
	}
	if !n.ready {
		n.queue = append(n.queue, toast)
		n.mu.Unlock()
		return true
	}
	n.mu.Unlock()

	n.show(toast)
	return true
}

func (n *Notifier) show(toast Toast) {
	n.mu.Lock()
	n.active[toast.ID] = toast
	n.mu.Unlock()

	if n.surface != nil {
		n.surface.Show(toast)
	}
	n.after(toast.Timeout, func() { n.dismiss(toast.ID) })
}

func (n *Notifier) dismiss(id int) {
	n.mu.Lock()
	_, ok := n.active[id]
	delete(n.active, id)
	n.mu.Unlock()

	if ok && n.surface != nil {
		n.surface.Dismiss(id)
	}
}

// WriterSurface prints toasts as lines, for terminals and logs.
type WriterSurface struct {
	W io.Writer
}

func (s WriterSurface) Show(t Toast) {
	fmt.Fprintf(s.W, "[%s] %s\n", t.Variant, t.Message)
}

func (s WriterSurface) Dismiss(int) {}
