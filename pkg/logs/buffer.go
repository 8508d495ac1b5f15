package logs

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/logwatch/pkg/logging"
)

// RateWindow is the span used for RatePerMinute.
const RateWindow = time.Minute

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 10000

// Stats is an aggregate snapshot of the buffer.
type Stats struct {
	// TotalCount is every entry accepted since the last Clear, including
	// those since evicted.
	TotalCount int64 `json:"totalCount"`
	// FilteredCount is the number of entries in the current view.
	FilteredCount int `json:"filteredCount"`
	// RatePerMinute counts buffered entries stamped within one minute of
	// the newest timestamp.
	RatePerMinute int `json:"ratePerMinute"`
	// Buffered is the number of entries currently held.
	Buffered int `json:"buffered"`
	// Duplicates counts entries dropped by deduplication.
	Duplicates int64 `json:"duplicates"`
	// LevelCounts is the per-level count of buffered entries.
	LevelCounts map[Level]int `json:"levelCounts"`
}

func (s Stats) clone() Stats {
	out := s
	out.LevelCounts = make(map[Level]int, len(s.LevelCounts))
	for k, v := range s.LevelCounts {
		out.LevelCounts[k] = v
	}
	return out
}

// Snapshot is a consistent view and stats pair.
type Snapshot struct {
	View  []LogEntry
	Stats Stats
}

// Listener is called after every mutation with copies of the view and stats.
// It runs on the mutating goroutine, outside the buffer lock.
type Listener func(view []LogEntry, stats Stats)

// Option configures a Buffer.
type Option func(*Buffer)

// WithDedup enables dropping of entries whose (timestamp, resource,
// message) is already buffered.
func WithDedup(enabled bool) Option {
	return func(b *Buffer) { b.dedup = enabled }
}

// WithListener registers the change listener.
func WithListener(l Listener) Option {
	return func(b *Buffer) { b.listener = l }
}

// WithLogger sets the logger.
func WithLogger(l *logging.ColoredLogger) Option {
	return func(b *Buffer) { b.logger = l }
}

// Buffer is the bounded, insertion-ordered store of received entries and the
// filter/statistics engine over it. One goroutine writes; any number read.
type Buffer struct {
	mu     sync.RWMutex
	ring   *ring
	filter Filter
	view   []LogEntry
	stats  Stats
	dedup  bool
	seen   map[dedupKey]int

	listener Listener
	logger   *logging.ColoredLogger
}

// NewBuffer creates a buffer holding at most capacity entries.
func NewBuffer(capacity int, opts ...Option) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		ring:   newRing(capacity),
		seen:   make(map[dedupKey]int),
		logger: logging.NewNopLogger(),
		stats:  Stats{LevelCounts: make(map[Level]int)},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetListener replaces the change listener.
func (b *Buffer) SetListener(l Listener) {
	b.mu.Lock()
	b.listener = l
	b.mu.Unlock()
}

// Capacity returns the maximum number of buffered entries.
func (b *Buffer) Capacity() int {
	return b.ring.capacity()
}

// Append adds entries in arrival order, evicting the oldest when full.
func (b *Buffer) Append(entries ...LogEntry) {
	if len(entries) == 0 {
		return
	}

	b.mu.Lock()
	accepted := 0
	for _, e := range entries {
		if b.dedup {
			k := e.key()
			if b.seen[k] > 0 {
				b.stats.Duplicates++
				continue
			}
			b.seen[k]++
		}

		if old, evicted := b.ring.push(e); evicted {
			b.evict(old)
		}
		b.stats.LevelCounts[e.Level]++
		b.stats.TotalCount++
		if b.filter.Match(e) {
			b.view = append(b.view, e)
		}
		accepted++
	}
	if accepted == 0 {
		b.mu.Unlock()
		b.logger.ComponentDebug(logging.ComponentBuffer, "Dropped duplicate batch", zap.Int("entries", len(entries)))
		return
	}
	b.refreshStatsLocked()
	notify, view, stats := b.prepareNotifyLocked()
	b.mu.Unlock()

	if notify != nil {
		notify(view, stats)
	}
}

// evict removes an entry that fell off the ring from the derived state.
// Entries leave the ring oldest first, so a matching evictee is always the
// head of the view.
func (b *Buffer) evict(old LogEntry) {
	if b.dedup {
		k := old.key()
		if b.seen[k] <= 1 {
			delete(b.seen, k)
		} else {
			b.seen[k]--
		}
	}
	if n := b.stats.LevelCounts[old.Level]; n <= 1 {
		delete(b.stats.LevelCounts, old.Level)
	} else {
		b.stats.LevelCounts[old.Level] = n - 1
	}
	if len(b.view) > 0 && b.filter.Match(old) {
		b.view[0] = LogEntry{}
		b.view = b.view[1:]
	}
}

// Clear empties the buffer and resets statistics and the dedup index.
// Connection state is not touched.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.ring.reset()
	b.view = nil
	b.seen = make(map[dedupKey]int)
	b.stats = Stats{LevelCounts: make(map[Level]int)}
	notify, view, stats := b.prepareNotifyLocked()
	b.mu.Unlock()

	b.logger.ComponentDebug(logging.ComponentBuffer, "Buffer cleared")
	if notify != nil {
		notify(view, stats)
	}
}

// SetFilter replaces the active predicate and recomputes the view before
// returning.
func (b *Buffer) SetFilter(f Filter) {
	b.mu.Lock()
	b.filter = f
	b.view = f.Apply(b.ring.slice())
	b.refreshStatsLocked()
	notify, view, stats := b.prepareNotifyLocked()
	b.mu.Unlock()

	if notify != nil {
		notify(view, stats)
	}
}

// Filter returns the active predicate.
func (b *Buffer) Filter() Filter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter
}

// View returns a copy of the filtered entries, oldest first.
func (b *Buffer) View() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyEntries(b.view)
}

// Entries returns a copy of every buffered entry regardless of filter.
func (b *Buffer) Entries() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ring.slice()
}

// Stats returns the current statistics.
func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats.clone()
}

// Snapshot returns the view and stats taken under one lock.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{View: copyEntries(b.view), Stats: b.stats.clone()}
}

func (b *Buffer) refreshStatsLocked() {
	b.stats.FilteredCount = len(b.view)
	b.stats.Buffered = b.ring.len()
	b.stats.RatePerMinute = b.rateLocked()
}

// rateLocked counts entries within RateWindow of the newest timestamp.
func (b *Buffer) rateLocked() int {
	n := b.ring.len()
	if n == 0 {
		return 0
	}
	var newest time.Time
	for i := 0; i < n; i++ {
		if ts := b.ring.at(i).Timestamp; ts.After(newest) {
			newest = ts
		}
	}
	cutoff := newest.Add(-RateWindow)
	count := 0
	for i := 0; i < n; i++ {
		if !b.ring.at(i).Timestamp.Before(cutoff) {
			count++
		}
	}
	return count
}

func (b *Buffer) prepareNotifyLocked() (Listener, []LogEntry, Stats) {
	if b.listener == nil {
		return nil, nil, Stats{}
	}
	return b.listener, copyEntries(b.view), b.stats.clone()
}

func copyEntries(in []LogEntry) []LogEntry {
	out := make([]LogEntry, len(in))
	copy(out, in)
	return out
}
