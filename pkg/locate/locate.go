// Package locate zooms the timeline onto a chosen event and highlights the
// event's point once the chart has rendered the new range.
package locate

import (
	"math"
	"sync"
	"time"

	"github.com/rubiojr/timetrip/pkg/clock"
	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/rubiojr/timetrip/pkg/selection"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

// MinWindow is the narrowest span, in years, shown around an event. It is
// also the minimum padding on each side.
const MinWindow = 1000

// Surface is a rendered chart that can carry a highlight overlay.
type Surface interface {
	Points() []timeline.Point
	ClearHighlight()
	AddHighlight(p timeline.Point)
}

// RangeSetter is the part of the query manager the locator drives.
type RangeSetter interface {
	SetRange(start, end int64) error
}

// Highlight reports the outcome of a post-render highlight pass.
type Highlight struct {
	EventID timeline.EventID `json:"event_id"`
	Found   bool             `json:"found"`
	Point   timeline.Point   `json:"-"`
}

// Options configure a Locator.
type Options struct {
	// SettleDelay postpones the highlight pass after Rendered for renderers
	// that keep laying out after they report completion. Zero runs the pass
	// synchronously inside Rendered.
	SettleDelay time.Duration
	Clock       clock.Clock
}

// Locator is safe for concurrent use.
type Locator struct {
	q       RangeSetter
	sel     *selection.State
	surface Surface
	clock   clock.Clock

	mu          sync.Mutex
	settle      time.Duration
	pending     *timeline.Event
	gen         uint64
	timer       clock.Timer
	onHighlight []func(Highlight)

	logger *log.Logger
}

// New returns a locator. surface is the chart cleared on selection.
func New(q RangeSetter, sel *selection.State, surface Surface, opts Options) *Locator {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if sel == nil {
		sel = selection.New()
	}
	return &Locator{
		q:       q,
		sel:     sel,
		surface: surface,
		clock:   opts.Clock,
		settle:  opts.SettleDelay,
		logger:  log.ForService("locate"),
	}
}

// SetSettleDelay changes the post-render delay.
func (l *Locator) SetSettleDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settle = d
}

// OnHighlight registers a callback run after every highlight pass that had a
// target.
func (l *Locator) OnHighlight(fn func(Highlight)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onHighlight = append(l.onHighlight, fn)
}

// WindowFor returns the range that frames ev with padding on both sides.
func WindowFor(ev timeline.Event) (int64, int64) {
	start, end := float64(ev.StartYear), float64(ev.EndYear)
	if end < start {
		end = start
	}
	span := math.Max(end-start, MinWindow)
	padding := math.Max(span*0.1, MinWindow)
	return int64(math.Floor(start - padding)), int64(math.Ceil(end + padding))
}

// SelectEvent clears the current highlight, records ev as selected and
// zooms onto it. The highlight itself is drawn by the next Rendered call.
func (l *Locator) SelectEvent(ev timeline.Event) (int64, int64, error) {
	start, end := WindowFor(ev)

	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.gen++
	target := ev
	l.pending = &target
	l.mu.Unlock()

	if l.surface != nil {
		l.surface.ClearHighlight()
	}
	l.sel.SetHighlighted("")
	l.sel.SelectEvent(ev)

	if err := l.q.SetRange(start, end); err != nil {
		l.mu.Lock()
		l.pending = nil
		l.mu.Unlock()
		return 0, 0, err
	}
	l.logger.Debugf("locating %s in [%d, %d]", ev.ID, start, end)
	return start, end, nil
}

// Pending returns the event waiting to be highlighted.
func (l *Locator) Pending() (timeline.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return timeline.Event{}, false
	}
	return *l.pending, true
}

// Rendered must be called by the chart owner once a new figure is on s.
func (l *Locator) Rendered(s Surface) {
	l.mu.Lock()
	delay := l.settle
	gen := l.gen
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if delay > 0 {
		l.timer = l.clock.AfterFunc(delay, func() { l.highlight(s, gen) })
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.highlight(s, gen)
}

func (l *Locator) highlight(s Surface, gen uint64) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	target := l.pending
	l.pending = nil
	l.timer = nil
	callbacks := append([]func(Highlight){}, l.onHighlight...)
	l.mu.Unlock()

	s.ClearHighlight()
	if target == nil {
		l.sel.SetHighlighted("")
		return
	}

	res := Highlight{EventID: target.ID}
	for _, p := range s.Points() {
		if p.IsCluster() {
			continue
		}
		if target.ID.Matches(p.Identity) || (p.Event != nil && target.ID.Matches(p.Event.ID)) {
			res.Found = true
			res.Point = p
			break
		}
	}

	if res.Found {
		s.AddHighlight(res.Point)
		l.sel.SetHighlighted(target.ID)
		l.logger.Debugf("highlighted %s at trace %d point %d", target.ID, res.Point.Trace, res.Point.Index)
	} else {
		l.sel.SetHighlighted("")
		l.logger.Debugf("event %s not among the rendered points", target.ID)
	}
	for _, fn := range callbacks {
		fn(res)
	}
}
