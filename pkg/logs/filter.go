package logs

import "strings"

// Filter is the predicate applied to the buffer to derive the visible view.
// Zero fields match everything.
type Filter struct {
	// MinLevel keeps entries at or above this severity.
	MinLevel Level `json:"minLevel,omitempty"`
	// Level keeps only this exact level. Takes precedence over MinLevel.
	Level Level `json:"level,omitempty"`
	// Source is matched exactly.
	Source string `json:"source,omitempty"`
	// Search is a case-insensitive substring of the message.
	Search string `json:"search,omitempty"`
	// ResourceID is matched exactly.
	ResourceID string `json:"resourceId,omitempty"`
}

// IsZero reports whether f matches every entry.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Match reports whether e passes the filter.
func (f Filter) Match(e LogEntry) bool {
	switch {
	case f.Level != "":
		if e.Level != f.Level {
			return false
		}
	case f.MinLevel != "":
		if e.Level.Rank() < f.MinLevel.Rank() {
			return false
		}
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// Apply returns the entries matching f, preserving order.
func (f Filter) Apply(entries []LogEntry) []LogEntry {
	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// NextLevel cycles all -> debug -> info -> warn -> error -> fatal -> all.
// It is used by the interactive level toggle.
func NextLevel(current Level) Level {
	if current == "" {
		return Levels[0]
	}
	for i, l := range Levels {
		if l == current && i+1 < len(Levels) {
			return Levels[i+1]
		}
	}
	return ""
}
