// Package crossfade switches the page backdrop between eras using two
// stacked layers. The incoming era is painted on the hidden layer, then both
// layers fade in opposite directions.
package crossfade

import (
	"sync"
	"time"

	"github.com/rubiojr/timetrip/pkg/clock"
	"github.com/rubiojr/timetrip/pkg/era"
	"github.com/rubiojr/timetrip/pkg/log"
)

// DefaultDuration is the fade length.
const DefaultDuration = 2000 * time.Millisecond

// InitialYear is the year the backdrop shows before the first render.
const InitialYear = -2_500_000_000

// Layer is one backdrop surface.
type Layer interface {
	SetTheme(era.Theme)
	// SetOpacity animates the layer opacity to value over d. A zero d
	// applies the value immediately.
	SetOpacity(value float64, d time.Duration)
}

// Change is sent to observers whenever the displayed era changes.
type Change struct {
	From    string  `json:"from"`
	To      era.Era `json:"to"`
	Year    float64 `json:"year"`
	Instant bool    `json:"instant"`
	Active  int     `json:"active"`
}

// Options tune a Controller. Zero values select the defaults.
type Options struct {
	Duration      time.Duration
	ReducedMotion bool
	Clock         clock.Clock
}

// Controller owns the two backdrop layers.
type Controller struct {
	mu       sync.Mutex
	table    era.Table
	layers   [2]Layer
	opacity  [2]float64
	active   int
	current  string
	timer    clock.Timer
	target   int
	gen      uint64
	duration time.Duration
	reduced  bool
	clock    clock.Clock

	observers []func(Change)
	logger    *log.Logger
}

// New returns a controller over layers a and b. Call Init before use.
func New(table era.Table, a, b Layer, opts Options) *Controller {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Controller{
		table:    table,
		layers:   [2]Layer{a, b},
		duration: opts.Duration,
		reduced:  opts.ReducedMotion,
		clock:    opts.Clock,
		logger:   log.ForService("crossfade"),
	}
}

// OnChange registers an observer. Observers run after the controller lock is
// released.
func (c *Controller) OnChange(fn func(Change)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// SetReducedMotion toggles instant switching.
func (c *Controller) SetReducedMotion(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reduced = v
}

// SetDuration changes the fade length of later transitions.
func (c *Controller) SetDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = d
}

// Init paints both layers with the era of year and shows layer A.
func (c *Controller) Init(year float64) {
	c.mu.Lock()
	e := c.table.ResolveFloat(year)
	c.stopPendingLocked()
	c.gen++
	for _, l := range c.layers {
		l.SetTheme(e.Theme)
	}
	c.layers[0].SetOpacity(1, 0)
	c.layers[1].SetOpacity(0, 0)
	c.opacity = [2]float64{1, 0}
	c.active = 0
	prev := c.current
	c.current = e.Name
	change := Change{From: prev, To: e, Year: year, Instant: true, Active: 0}
	observers := c.observers
	c.mu.Unlock()

	c.logger.Debugf("initialised backdrop with %s", e.Name)
	notify(observers, change)
}

// ApplyEraForYear shows the era containing year. It returns false when that
// era is already displayed.
func (c *Controller) ApplyEraForYear(year float64) bool {
	c.mu.Lock()
	e := c.table.ResolveFloat(year)
	if e.Name == c.current {
		c.mu.Unlock()
		return false
	}

	// A transition still in flight counts as finished.
	if c.stopPendingLocked() {
		c.active = c.target
	}
	c.gen++
	incoming := 1 - c.active
	outgoing := c.active
	c.layers[incoming].SetTheme(e.Theme)

	instant := c.reduced
	if instant {
		c.layers[incoming].SetOpacity(1, 0)
		c.layers[outgoing].SetOpacity(0, 0)
		c.active = incoming
	} else {
		c.layers[incoming].SetOpacity(1, c.duration)
		c.layers[outgoing].SetOpacity(0, c.duration)
		c.target = incoming
		gen := c.gen
		c.timer = c.clock.AfterFunc(c.duration, func() { c.finish(gen, incoming) })
	}
	c.opacity[incoming], c.opacity[outgoing] = 1, 0

	prev := c.current
	c.current = e.Name
	change := Change{From: prev, To: e, Year: year, Instant: instant, Active: incoming}
	observers := c.observers
	c.mu.Unlock()

	c.logger.Debugf("era %s -> %s at year %.0f", prev, e.Name, year)
	notify(observers, change)
	return true
}

func (c *Controller) finish(gen uint64, incoming int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.logger.Debugf("dropping stale transition %d", gen)
		return
	}
	c.active = incoming
	c.timer = nil
}

// stopPendingLocked cancels an in-flight transition and reports whether one
// was pending. A timer that already fired but has not run finish yet still
// counts as pending.
func (c *Controller) stopPendingLocked() bool {
	if c.timer == nil {
		return false
	}
	c.timer.Stop()
	c.timer = nil
	return true
}

// State is a snapshot of the controller.
type State struct {
	Era           string     `json:"era"`
	Active        int        `json:"active"`
	Opacity       [2]float64 `json:"opacity"`
	Transitioning bool       `json:"transitioning"`
}

// Snapshot returns the current state. Opacity holds the target values of an
// in-flight fade.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Era:           c.current,
		Active:        c.active,
		Opacity:       c.opacity,
		Transitioning: c.timer != nil,
	}
}

// Current returns the displayed era name.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func notify(observers []func(Change), ch Change) {
	for _, fn := range observers {
		fn(ch)
	}
}
