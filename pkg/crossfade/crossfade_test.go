package crossfade

import (
	"testing"
	"time"

	"github.com/rubiojr/timetrip/pkg/clock"
	"github.com/rubiojr/timetrip/pkg/era"
)

func newTestController(t *testing.T, reduced bool) (*Controller, *MemoryLayer, *MemoryLayer, *clock.Fake) {
	t.Helper()
	a := NewMemoryLayer("a", nil)
	b := NewMemoryLayer("b", nil)
	fake := clock.NewFake()
	c := New(era.Default(), a, b, Options{ReducedMotion: reduced, Clock: fake})
	c.Init(InitialYear)
	return c, a, b, fake
}

func TestInit(t *testing.T) {
	c, a, b, _ := newTestController(t, false)
	if c.Current() != "Proterozoic" {
		t.Fatalf("Current() = %s, want Proterozoic", c.Current())
	}
	if a.Theme() != b.Theme() {
		t.Fatalf("both layers should share the initial theme")
	}
	if v, _ := a.Opacity(); v != 1 {
		t.Errorf("layer A opacity = %v, want 1", v)
	}
	if v, _ := b.Opacity(); v != 0 {
		t.Errorf("layer B opacity = %v, want 0", v)
	}
	if c.Snapshot().Active != 0 {
		t.Errorf("layer A should be active")
	}
}

func TestSameEraIsNoop(t *testing.T) {
	c, a, b, fake := newTestController(t, false)
	if !c.ApplyEraForYear(-100_000_000) {
		t.Fatal("expected a transition to Mesozoic")
	}
	before := [2]LayerState{a.State(), b.State()}
	pending := fake.Pending()

	if c.ApplyEraForYear(-90_000_000) {
		t.Fatal("second call in the same era should be a no-op")
	}
	if a.State() != before[0] || b.State() != before[1] {
		t.Fatal("layers changed on a no-op call")
	}
	if fake.Pending() != pending {
		t.Fatal("no-op call scheduled a timer")
	}
}

func TestTransitionFlipsAfterDuration(t *testing.T) {
	c, a, b, fake := newTestController(t, false)
	var changes []Change
	c.OnChange(func(ch Change) { changes = append(changes, ch) })

	c.ApplyEraForYear(2000)
	if b.Theme() != era.Default()[6].Theme {
		t.Fatalf("incoming layer should carry the Human Era theme")
	}
	if v, d := b.Opacity(); v != 1 || d != DefaultDuration {
		t.Errorf("incoming opacity = %v over %v", v, d)
	}
	if v, d := a.Opacity(); v != 0 || d != DefaultDuration {
		t.Errorf("outgoing opacity = %v over %v", v, d)
	}
	if c.Snapshot().Active != 0 || !c.Snapshot().Transitioning {
		t.Fatalf("active layer must not flip before the fade completes: %+v", c.Snapshot())
	}

	fake.Advance(DefaultDuration - time.Millisecond)
	if c.Snapshot().Active != 0 {
		t.Fatal("flipped early")
	}
	fake.Advance(time.Millisecond)
	if st := c.Snapshot(); st.Active != 1 || st.Transitioning {
		t.Fatalf("expected layer B active after fade: %+v", st)
	}

	if len(changes) != 1 || changes[0].From != "Proterozoic" || changes[0].To.Name != "Human Era" {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestInterruptedTransition(t *testing.T) {
	c, a, b, fake := newTestController(t, false)

	c.ApplyEraForYear(2000) // B fades in
	fake.Advance(500 * time.Millisecond)
	c.ApplyEraForYear(5000) // interrupts; B counts as shown, A takes Future

	if a.Theme() != era.Default()[7].Theme {
		t.Fatalf("layer A should now carry the Future theme")
	}
	if v, _ := a.Opacity(); v != 1 {
		t.Errorf("layer A opacity = %v, want 1", v)
	}
	if v, _ := b.Opacity(); v != 0 {
		t.Errorf("layer B opacity = %v, want 0", v)
	}
	if fake.Pending() != 1 {
		t.Fatalf("expected exactly one pending transition, got %d", fake.Pending())
	}

	fake.Advance(DefaultDuration)
	st := c.Snapshot()
	if st.Active != 0 || st.Era != "Future" {
		t.Fatalf("state = %+v", st)
	}
	if st.Opacity[st.Active] != 1 {
		t.Fatalf("active layer must be the visible one: %+v", st)
	}
}

func TestStaleTimerIgnored(t *testing.T) {
	c, _, _, _ := newTestController(t, false)
	c.ApplyEraForYear(2000)
	gen := c.gen

	c.ApplyEraForYear(5000)
	active := c.Snapshot().Active

	c.finish(gen, 1-active)
	if c.Snapshot().Active != active {
		t.Fatal("stale completion changed the active layer")
	}
}

func TestReducedMotion(t *testing.T) {
	c, a, b, fake := newTestController(t, true)
	c.ApplyEraForYear(2000)

	if fake.Pending() != 0 {
		t.Fatal("reduced motion must not schedule timers")
	}
	if v, d := b.Opacity(); v != 1 || d != 0 {
		t.Errorf("incoming opacity = %v over %v", v, d)
	}
	if v, d := a.Opacity(); v != 0 || d != 0 {
		t.Errorf("outgoing opacity = %v over %v", v, d)
	}
	if c.Snapshot().Active != 1 {
		t.Fatal("reduced motion should flip immediately")
	}
}

func TestMemoryLayerNotifies(t *testing.T) {
	var got []LayerState
	l := NewMemoryLayer("a", func(st LayerState) { got = append(got, st) })
	l.SetTheme(era.Theme{Gradient: "g", Image: "i.webp"})
	l.SetOpacity(0.5, time.Second)

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	last := got[1]
	if last.Background != "url(i.webp), g" || last.Opacity != 0.5 || last.DurationMS != 1000 || last.Name != "a" {
		t.Fatalf("state = %+v", last)
	}
}
