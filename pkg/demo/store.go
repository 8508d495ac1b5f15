package demo

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeBrosOfficial/logwatch/pkg/logs"
	"github.com/DeBrosOfficial/logwatch/pkg/registry"
)

// historyLimit bounds the entries kept for /logs queries.
const historyLimit = 5000

// Store is the in-memory state behind the demo API.
type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	resources map[string]bool
	streams   []registry.LogStream
	overrides map[string][]registry.LogStreamOverride
	history   []logs.LogEntry
}

// NewStore creates a store that knows resources.
func NewStore(now func() time.Time, resources ...string) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{
		now:       now,
		resources: make(map[string]bool, len(resources)),
		overrides: make(map[string][]registry.LogStreamOverride),
	}
	for _, r := range resources {
		s.resources[r] = true
	}
	return s
}

// Resources lists the known resource ids, sorted.
func (s *Store) Resources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.resources))
	for r := range s.resources {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// HasResource reports whether id is known.
func (s *Store) HasResource(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resources[id]
}

// Streams returns all streams in creation order.
func (s *Store) Streams() []registry.LogStream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]registry.LogStream(nil), s.streams...)
}

// CreateStream stores a new stream.
func (s *Store) CreateStream(in registry.StreamInput) registry.LogStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	ls := registry.LogStream{
		ID:         "ls-" + uuid.New().String(),
		Name:       in.Name,
		ResourceID: in.ResourceID,
		Filter:     in.Filter,
		Enabled:    in.Enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.streams = append(s.streams, ls)
	return ls
}

// UpdateStream applies patch to stream id.
func (s *Store) UpdateStream(id string, patch registry.StreamPatch) (registry.LogStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ls := range s.streams {
		if ls.ID != id {
			continue
		}
		ls = patch.Apply(ls)
		ls.UpdatedAt = s.now().UTC()
		s.streams[i] = ls
		return ls, true
	}
	return registry.LogStream{}, false
}

// DeleteStream removes stream id along with its overrides.
func (s *Store) DeleteStream(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ls := range s.streams {
		if ls.ID == id {
			s.streams = append(s.streams[:i], s.streams[i+1:]...)
			delete(s.overrides, id)
			return true
		}
	}
	return false
}

func (s *Store) hasStreamLocked(id string) bool {
	for _, ls := range s.streams {
		if ls.ID == id {
			return true
		}
	}
	return false
}

// Overrides lists the overrides of streamID. ok is false when the stream
// does not exist.
func (s *Store) Overrides(streamID string) ([]registry.LogStreamOverride, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasStreamLocked(streamID) {
		return nil, false
	}
	return append([]registry.LogStreamOverride(nil), s.overrides[streamID]...), true
}

// CreateOverride attaches an override to streamID.
func (s *Store) CreateOverride(streamID string, in registry.OverrideInput) (registry.LogStreamOverride, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasStreamLocked(streamID) {
		return registry.LogStreamOverride{}, false
	}
	now := s.now().UTC()
	o := registry.LogStreamOverride{
		ID:         "lso-" + uuid.New().String(),
		StreamID:   streamID,
		ResourceID: in.ResourceID,
		Overrides:  in.Overrides,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.overrides[streamID] = append(s.overrides[streamID], o)
	return o, true
}

// UpdateOverride replaces the override map of overrideID.
func (s *Store) UpdateOverride(streamID, overrideID string, in registry.OverrideInput) (registry.LogStreamOverride, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.overrides[streamID]
	for i, o := range list {
		if o.ID != overrideID {
			continue
		}
		o.Overrides = in.Overrides
		if in.ResourceID != "" {
			o.ResourceID = in.ResourceID
		}
		o.UpdatedAt = s.now().UTC()
		list[i] = o
		return o, true
	}
	return registry.LogStreamOverride{}, false
}

// DeleteOverride removes overrideID from streamID.
func (s *Store) DeleteOverride(streamID, overrideID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.overrides[streamID]
	for i, o := range list {
		if o.ID == overrideID {
			s.overrides[streamID] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Record appends generated entries to the queryable history.
func (s *Store) Record(entries ...logs.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entries...)
	if over := len(s.history) - historyLimit; over > 0 {
		s.history = append([]logs.LogEntry(nil), s.history[over:]...)
	}
}

// Query describes a /logs request.
type Query struct {
	ResourceIDs []string
	Level       logs.Level
	Start, End  time.Time
	Limit       int
}

// Recent returns up to q.Limit matching entries, newest first.
func (s *Store) Recent(q Query) []logs.LogEntry {
	want := make(map[string]bool, len(q.ResourceIDs))
	for _, id := range q.ResourceIDs {
		want[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []logs.LogEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		e := s.history[i]
		if len(want) > 0 && !want[e.ResourceID] {
			continue
		}
		if q.Level != "" && e.Level.Rank() < q.Level.Rank() {
			continue
		}
		if !q.Start.IsZero() && e.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && e.Timestamp.After(q.End) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// LabelValues returns the distinct values of label key, sorted.
func (s *Store) LabelValues(resourceIDs []string, key string) []string {
	want := make(map[string]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		if id = strings.TrimSpace(id); id != "" {
			want[id] = true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for _, e := range s.history {
		if len(want) > 0 && !want[e.ResourceID] {
			continue
		}
		var v string
		switch key {
		case "level":
			v = e.Level.String()
		case "type", "source":
			v = e.Source
		default:
			v = e.Labels[key]
		}
		if v != "" {
			seen[v] = true
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
