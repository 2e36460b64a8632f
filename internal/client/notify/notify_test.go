package notify

import (
	"testing"
	"time"
)

type recordingSurface struct {
	shown     []Toast
	dismissed []int
}

func (r *recordingSurface) Show(t Toast) { r.shown = append(r.shown, t) }
func (r *recordingSurface) Dismiss(id int) { r.dismissed = append(r.dismissed, id) }

type fakeClock struct {
	now    time.Time
	timers []func()
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(_ time.Duration, fn func()) { c.timers = append(c.timers, fn) }

func (c *fakeClock) fire() {
	timers := c.timers
	c.timers = nil
	for _, fn := range timers {
		fn()
	}
}

func newTestNotifier() (*Notifier, *recordingSurface, *fakeClock) {
	surface := &recordingSurface{}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := New(surface, Options{Now: clock.Now, After: clock.After})
	n.Ready()
	return n, surface, clock
}

func TestNotifyWithinCooldownShowsOnce(t *testing.T) {
	n, surface, clock := newTestNotifier()

	n.Notify(CategoryService, "Aserras Brain is unreachable.")
	clock.now = clock.now.Add(5 * time.Second)
	if n.Notify(CategoryService, "Aserras Brain is unreachable.") {
		t.Fatal("second toast inside cooldown should be dropped")
	}

	if len(surface.shown) != 1 {
		t.Fatalf("expected 1 toast, got %d", len(surface.shown))
	}
}

func TestNotifyAfterCooldownShowsTwice(t *testing.T) {
	n, surface, clock := newTestNotifier()

	n.Notify(CategoryService, "first")
	clock.now = clock.now.Add(DefaultCooldown + time.Second)
	n.Notify(CategoryService, "second")

	if len(surface.shown) != 2 {
		t.Fatalf("expected 2 toasts, got %d", len(surface.shown))
	}
}

func TestCategoriesAreIndependent(t *testing.T) {
	n, surface, _ := newTestNotifier()

	n.Notify(CategoryService, "offline")
	n.Notify(CategorySession, "expired")

	if len(surface.shown) != 2 {
		t.Fatalf("expected toasts from both categories, got %d", len(surface.shown))
	}
	active := n.Active()
	if len(active) != 2 {
		t.Fatalf("toasts should stack, active=%d", len(active))
	}
	if active[0].Message != "offline" || active[0].ID >= active[1].ID {
		t.Fatalf("active toasts should be in issue order, got %+v", active)
	}
}

func TestQueuedUntilReady(t *testing.T) {
	surface := &recordingSurface{}
	clock := &fakeClock{now: time.Now()}
	n := New(surface, Options{Now: clock.Now, After: clock.After})

	n.Notify(CategoryService, "queued")
	if len(surface.shown) != 0 {
		t.Fatal("nothing should render before ready")
	}

	n.Ready()
	n.Ready()
	if len(surface.shown) != 1 || surface.shown[0].Message != "queued" {
		t.Fatalf("expected queued toast flushed once, got %+v", surface.shown)
	}
}

func TestToastsAutoDismiss(t *testing.T) {
	n, surface, clock := newTestNotifier()

	n.Notify(CategoryService, "offline")
	n.Info("saved")
	clock.fire()

	if len(surface.dismissed) != 2 {
		t.Fatalf("expected both toasts dismissed, got %v", surface.dismissed)
	}
	if len(n.Active()) != 0 {
		t.Fatal("no toast should remain active")
	}
}

func TestEmptyMessageIgnored(t *testing.T) {
	n, surface, _ := newTestNotifier()
	if n.Notify(CategoryService, "") {
		t.Fatal("empty message accepted")
	}
	if n.Notify(CategoryService, "real") == false || len(surface.shown) != 1 {
		t.Fatal("empty message must not start the cooldown")
	}
}
