package registry

import (
	"context"
	"time"

	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

// StreamFilter is the level/source predicate stored on a stream.
type StreamFilter struct {
	Level  logs.Level `json:"level,omitempty"`
	Source string     `json:"source,omitempty"`
}

// LogFilter converts the stored predicate into a buffer filter.
func (f StreamFilter) LogFilter(resourceID string) logs.Filter {
	return logs.Filter{MinLevel: f.Level, Source: f.Source, ResourceID: resourceID}
}

// LogStream is a named, persistent stream configuration.
type LogStream struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	ResourceID string       `json:"resourceId"`
	Filter     StreamFilter `json:"filters"`
	Enabled    bool         `json:"enabled"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// LogStreamOverride is a per-resource override attached to a stream.
type LogStreamOverride struct {
	ID         string            `json:"id"`
	StreamID   string            `json:"streamId"`
	ResourceID string            `json:"resourceId"`
	Overrides  map[string]string `json:"overrides"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// StreamInput is the payload for creating a stream.
type StreamInput struct {
	Name       string       `json:"name"`
	ResourceID string       `json:"resourceId"`
	Filter     StreamFilter `json:"filters"`
	Enabled    bool         `json:"enabled"`
}

// StreamPatch lists the fields to change on a stream. Nil fields are left
// as they are.
type StreamPatch struct {
	Name    *string     `json:"name,omitempty"`
	Level   *logs.Level `json:"level,omitempty"`
	Source  *string     `json:"source,omitempty"`
	Enabled *bool       `json:"enabled,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p StreamPatch) IsEmpty() bool {
	return p.Name == nil && p.Level == nil && p.Source == nil && p.Enabled == nil
}

// Apply returns s with the patch applied. ID and CreatedAt are preserved.
func (p StreamPatch) Apply(s LogStream) LogStream {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Level != nil {
		s.Filter.Level = *p.Level
	}
	if p.Source != nil {
		s.Filter.Source = *p.Source
	}
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	return s
}

// OverrideInput is the payload for creating or replacing an override.
type OverrideInput struct {
	ResourceID string            `json:"resourceId,omitempty"`
	Overrides  map[string]string `json:"overrides"`
}

// Backend is the remote system of record. Every call is a synchronous
// round trip; implementations return typed errors from pkg/errors.
type Backend interface {
	ListStreams(ctx context.Context) ([]LogStream, error)
	CreateStream(ctx context.Context, in StreamInput) (LogStream, error)
	UpdateStream(ctx context.Context, id string, patch StreamPatch) (LogStream, error)
	DeleteStream(ctx context.Context, id string) error

	ListOverrides(ctx context.Context, streamID string) ([]LogStreamOverride, error)
	CreateOverride(ctx context.Context, streamID string, in OverrideInput) (LogStreamOverride, error)
	UpdateOverride(ctx context.Context, streamID, overrideID string, in OverrideInput) (LogStreamOverride, error)
	DeleteOverride(ctx context.Context, streamID, overrideID string) error

	ResourceExists(ctx context.Context, resourceID string) (bool, error)
}
