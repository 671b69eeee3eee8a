// Package cluster expands server-side event clusters. Expanding zooms the
// query onto the cluster bucket with clustering switched off, then puts the
// clustering switch back after a grace period.
package cluster

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rubiojr/timetrip/pkg/clock"
	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

// DefaultGrace is how long clustering stays off after an expansion.
const DefaultGrace = 2000 * time.Millisecond

// Padding is the fraction of the bucket span added on each side.
const Padding = 0.1

// Querier is the part of the query manager the engine drives.
type Querier interface {
	Clustering() bool
	Toggles() uint64
	SetRangeWithClustering(start, end int64, clustering bool) error
	RestoreClustering(v bool, since uint64) bool
}

// Options configure an Engine.
type Options struct {
	Grace time.Duration
	Clock clock.Clock
}

// Engine is safe for concurrent use.
type Engine struct {
	q     Querier
	grace time.Duration
	clock clock.Clock

	mu       sync.Mutex
	clusters map[string]timeline.ClusterInfo
	timer    clock.Timer
	gen      uint64
	// The clustering value in effect before the first expansion of a run,
	// and the toggle count observed at that point.
	saved    bool
	since    uint64
	inRun    bool
	restored func(bool)

	logger *log.Logger
}

// New returns an engine driving q.
func New(q Querier, opts Options) *Engine {
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Engine{
		q:        q,
		grace:    opts.Grace,
		clock:    opts.Clock,
		clusters: map[string]timeline.ClusterInfo{},
		logger:   log.ForService("cluster"),
	}
}

// OnRestore registers a callback invoked after the grace period with the
// clustering value that was put back.
func (e *Engine) OnRestore(fn func(clustering bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restored = fn
}

// Rebuild replaces the cluster index with the clusters of a new response.
func (e *Engine) Rebuild(clusters map[string]timeline.ClusterInfo) {
	idx := make(map[string]timeline.ClusterInfo, len(clusters))
	for id, c := range clusters {
		if c.ID == "" {
			c.ID = id
		}
		idx[id] = c
	}
	e.mu.Lock()
	e.clusters = idx
	e.mu.Unlock()
	e.logger.Debugf("indexed %d clusters", len(idx))
}

// Lookup returns the cluster with id from the latest response.
func (e *Engine) Lookup(id string) (timeline.ClusterInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.clusters[id]
	return c, ok
}

// Clusters returns the indexed clusters ordered by bucket start.
func (e *Engine) Clusters() []timeline.ClusterInfo {
	e.mu.Lock()
	out := make([]timeline.ClusterInfo, 0, len(e.clusters))
	for _, c := range e.clusters {
		out = append(out, c)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].BucketStart == out[j].BucketStart {
			return out[i].ID < out[j].ID
		}
		return out[i].BucketStart < out[j].BucketStart
	})
	return out
}

// ExpandRange returns the padded range that shows every event of c.
func ExpandRange(c timeline.ClusterInfo) (int64, int64) {
	span := c.BucketEnd - c.BucketStart
	start := int64(math.Floor(c.BucketStart - Padding*span))
	end := int64(math.Ceil(c.BucketEnd + Padding*span))
	if end <= start {
		end = start + 1
	}
	return start, end
}

// Expand zooms onto cluster id with clustering off. Unknown ids, such as ids
// from an older response, are ignored.
func (e *Engine) Expand(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.clusters[id]
	if !ok {
		e.logger.Debugf("cluster %s not in the current response", id)
		return nil
	}
	start, end := ExpandRange(c)

	toggles := e.q.Toggles()
	if !e.inRun || toggles != e.since {
		e.saved = e.q.Clustering()
		e.since = toggles
		e.inRun = true
	}

	if err := e.q.SetRangeWithClustering(start, end, false); err != nil {
		return err
	}
	e.logger.Debugf("expanded %s (%d events) to [%d, %d]", id, c.EventCount, start, end)

	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = e.clock.AfterFunc(e.grace, func() { e.restore(gen) })
	return nil
}

func (e *Engine) restore(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	applied := e.q.RestoreClustering(e.saved, e.since)
	value := e.saved
	e.inRun = false
	e.timer = nil
	fn := e.restored
	e.mu.Unlock()

	if !applied {
		return
	}
	e.logger.Debugf("clustering restored to %t", value)
	if fn != nil {
		fn(value)
	}
}
