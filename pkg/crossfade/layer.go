package crossfade

import (
	"sync"
	"time"

	"github.com/rubiojr/timetrip/pkg/era"
)

// MemoryLayer records the last theme and opacity it was given. It backs
// front-ends that draw the backdrop themselves from streamed state.
type MemoryLayer struct {
	mu       sync.Mutex
	theme    era.Theme
	opacity  float64
	duration time.Duration
	onChange func(LayerState)
	name     string
}

// LayerState is a MemoryLayer snapshot.
type LayerState struct {
	Name       string  `json:"name"`
	Background string  `json:"background"`
	Opacity    float64 `json:"opacity"`
	DurationMS int64   `json:"duration_ms"`
}

// NewMemoryLayer returns a layer named name. onChange may be nil.
func NewMemoryLayer(name string, onChange func(LayerState)) *MemoryLayer {
	return &MemoryLayer{name: name, onChange: onChange}
}

func (l *MemoryLayer) SetTheme(t era.Theme) {
	l.mu.Lock()
	l.theme = t
	st := l.stateLocked()
	l.mu.Unlock()
	l.emit(st)
}

func (l *MemoryLayer) SetOpacity(v float64, d time.Duration) {
	l.mu.Lock()
	l.opacity = v
	l.duration = d
	st := l.stateLocked()
	l.mu.Unlock()
	l.emit(st)
}

// State returns the recorded values.
func (l *MemoryLayer) State() LayerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

// Theme returns the last theme set.
func (l *MemoryLayer) Theme() era.Theme {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.theme
}

// Opacity returns the last target opacity and its fade duration.
func (l *MemoryLayer) Opacity() (float64, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opacity, l.duration
}

func (l *MemoryLayer) stateLocked() LayerState {
	return LayerState{
		Name:       l.name,
		Background: l.theme.Background(),
		Opacity:    l.opacity,
		DurationMS: l.duration.Milliseconds(),
	}
}

func (l *MemoryLayer) emit(st LayerState) {
	if l.onChange != nil {
		l.onChange(st)
	}
}
