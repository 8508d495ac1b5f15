package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

// Registry is the local cache of stream and override configuration. The
// backend is authoritative: every mutation is sent remotely and, once it
// succeeds, the whole cache is replaced from a fresh listing. Nothing is
// written to the cache optimistically.
type Registry struct {
	backend Backend
	logger  *logging.ColoredLogger

	mu        sync.RWMutex
	streams   []LogStream
	overrides map[string][]LogStreamOverride
	loaded    bool

	// writeMu orders mutations and their follow-up refresh.
	writeMu sync.Mutex
}

// New creates a registry over backend.
func New(backend Backend, logger *logging.ColoredLogger) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Registry{
		backend:   backend,
		logger:    logger,
		overrides: make(map[string][]LogStreamOverride),
	}
}

// Refresh replaces the cache with the backend's current streams and
// overrides. Overrides whose parent stream is not in the listing are
// dropped.
func (r *Registry) Refresh(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.refreshLocked(ctx)
}

func (r *Registry) refreshLocked(ctx context.Context) error {
	streams, err := r.backend.ListStreams(ctx)
	if err != nil {
		return errors.Wrap(err, "list streams")
	}

	ids := make(map[string]bool, len(streams))
	for _, s := range streams {
		ids[s.ID] = true
	}

	overrides := make(map[string][]LogStreamOverride, len(streams))
	dropped := 0
	for _, s := range streams {
		list, err := r.backend.ListOverrides(ctx, s.ID)
		if err != nil {
			if errors.IsNotFound(err) {
				// Stream deleted between the two listings.
				delete(ids, s.ID)
				continue
			}
			return errors.Wrapf(err, "list overrides for %s", s.ID)
		}
		for _, o := range list {
			if o.StreamID == "" {
				o.StreamID = s.ID
			}
			if o.StreamID != s.ID || !ids[o.StreamID] {
				dropped++
				continue
			}
			overrides[s.ID] = append(overrides[s.ID], o)
		}
	}

	kept := streams[:0]
	for _, s := range streams {
		if ids[s.ID] {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].CreatedAt.Before(kept[j].CreatedAt) })

	r.mu.Lock()
	r.streams = kept
	r.overrides = overrides
	r.loaded = true
	r.mu.Unlock()

	r.logger.ComponentDebug(logging.ComponentRegistry, "Registry refreshed",
		zap.Int("streams", len(kept)),
		zap.Int("dropped_overrides", dropped))
	return nil
}

// ensureLoaded performs the first refresh lazily.
func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	return r.Refresh(ctx)
}

// List returns cached streams, optionally only those for resourceFilter.
// The first call loads the cache from the backend.
func (r *Registry) List(ctx context.Context, resourceFilter string) ([]LogStream, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LogStream, 0, len(r.streams))
	for _, s := range r.streams {
		if resourceFilter == "" || s.ResourceID == resourceFilter {
			out = append(out, s)
		}
	}
	return out, nil
}

// Get returns a cached stream by id.
func (r *Registry) Get(id string) (LogStream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.streams {
		if s.ID == id {
			return s, true
		}
	}
	return LogStream{}, false
}

// Create validates input, creates the stream remotely, then refreshes.
func (r *Registry) Create(ctx context.Context, name, resourceID string, level logs.Level) (LogStream, error) {
	name = strings.TrimSpace(name)
	resourceID = strings.TrimSpace(resourceID)
	if name == "" {
		return LogStream{}, errors.NewValidationError("name", "stream name must not be empty", name)
	}
	if resourceID == "" {
		return LogStream{}, errors.NewValidationError("resourceId", "resource id must not be empty", resourceID)
	}
	if level != "" && !level.Valid() {
		return LogStream{}, errors.NewValidationError("level", fmt.Sprintf("unknown level %q", level), level)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	exists, err := r.backend.ResourceExists(ctx, resourceID)
	if err != nil {
		return LogStream{}, err
	}
	if !exists {
		return LogStream{}, errors.NewValidationError("resourceId", fmt.Sprintf("unknown resource %q", resourceID), resourceID)
	}

	created, err := r.backend.CreateStream(ctx, StreamInput{
		Name:       name,
		ResourceID: resourceID,
		Filter:     StreamFilter{Level: level},
		Enabled:    true,
	})
	if err != nil {
		return LogStream{}, err
	}
	r.logger.ComponentInfo(logging.ComponentRegistry, "Stream created",
		zap.String("id", created.ID),
		zap.String("name", created.Name))
	return created, r.afterWrite(ctx, "create stream")
}

// Update applies patch to stream id remotely, then refreshes.
func (r *Registry) Update(ctx context.Context, id string, patch StreamPatch) (LogStream, error) {
	if patch.IsEmpty() {
		return LogStream{}, errors.NewValidationError("patch", "nothing to update", nil)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return LogStream{}, errors.NewValidationError("name", "stream name must not be empty", *patch.Name)
	}
	if patch.Level != nil && *patch.Level != "" && !patch.Level.Valid() {
		return LogStream{}, errors.NewValidationError("level", fmt.Sprintf("unknown level %q", *patch.Level), *patch.Level)
	}
	if err := r.requireStream(ctx, id); err != nil {
		return LogStream{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	updated, err := r.backend.UpdateStream(ctx, id, patch)
	if err != nil {
		r.dropStaleOnNotFound(ctx, err)
		return LogStream{}, err
	}
	r.logger.ComponentInfo(logging.ComponentRegistry, "Stream updated", zap.String("id", id))
	return updated, r.afterWrite(ctx, "update stream")
}

// Delete removes stream id remotely, then refreshes.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.requireStream(ctx, id); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.backend.DeleteStream(ctx, id); err != nil {
		r.dropStaleOnNotFound(ctx, err)
		return err
	}
	r.logger.ComponentInfo(logging.ComponentRegistry, "Stream deleted", zap.String("id", id))
	return r.afterWrite(ctx, "delete stream")
}

// ListOverrides returns cached overrides of streamID.
func (r *Registry) ListOverrides(ctx context.Context, streamID string) ([]LogStreamOverride, error) {
	if err := r.requireStream(ctx, streamID); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]LogStreamOverride(nil), r.overrides[streamID]...), nil
}

// CreateOverride attaches a new override to streamID.
func (r *Registry) CreateOverride(ctx context.Context, streamID, resourceID string, overrides map[string]string) (LogStreamOverride, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return LogStreamOverride{}, errors.NewValidationError("resourceId", "resource id must not be empty", resourceID)
	}
	if err := r.requireStream(ctx, streamID); err != nil {
		return LogStreamOverride{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	created, err := r.backend.CreateOverride(ctx, streamID, OverrideInput{ResourceID: resourceID, Overrides: overrides})
	if err != nil {
		r.dropStaleOnNotFound(ctx, err)
		return LogStreamOverride{}, err
	}
	r.logger.ComponentInfo(logging.ComponentRegistry, "Override created",
		zap.String("stream_id", streamID),
		zap.String("id", created.ID))
	return created, r.afterWrite(ctx, "create override")
}

// UpdateOverride replaces the override map of overrideID.
func (r *Registry) UpdateOverride(ctx context.Context, streamID, overrideID string, overrides map[string]string) (LogStreamOverride, error) {
	if err := r.requireOverride(ctx, streamID, overrideID); err != nil {
		return LogStreamOverride{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	updated, err := r.backend.UpdateOverride(ctx, streamID, overrideID, OverrideInput{Overrides: overrides})
	if err != nil {
		r.dropStaleOnNotFound(ctx, err)
		return LogStreamOverride{}, err
	}
	return updated, r.afterWrite(ctx, "update override")
}

// DeleteOverride removes overrideID from streamID.
func (r *Registry) DeleteOverride(ctx context.Context, streamID, overrideID string) error {
	if err := r.requireOverride(ctx, streamID, overrideID); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.backend.DeleteOverride(ctx, streamID, overrideID); err != nil {
		r.dropStaleOnNotFound(ctx, err)
		return err
	}
	return r.afterWrite(ctx, "delete override")
}

func (r *Registry) requireStream(ctx context.Context, id string) error {
	return r.require(ctx, func() bool {
		_, ok := r.Get(id)
		return ok
	}, errors.NewNotFoundError("log stream", id))
}

func (r *Registry) requireOverride(ctx context.Context, streamID, overrideID string) error {
	if err := r.requireStream(ctx, streamID); err != nil {
		return err
	}
	return r.require(ctx, func() bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, o := range r.overrides[streamID] {
			if o.ID == overrideID {
				return true
			}
		}
		return false
	}, errors.NewNotFoundError("override", overrideID))
}

// require reports missing unless found holds. A cache miss triggers one
// refresh before giving up.
func (r *Registry) require(ctx context.Context, found func() bool, missing error) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()

	if loaded && found() {
		return nil
	}
	if err := r.Refresh(ctx); err != nil {
		return err
	}
	if !found() {
		return missing
	}
	return nil
}

// afterWrite refreshes following a successful remote write. A refresh
// failure does not undo the write; it is returned wrapped so the caller can
// report a possibly stale cache.
func (r *Registry) afterWrite(ctx context.Context, op string) error {
	if err := r.refreshLocked(ctx); err != nil {
		r.logger.ComponentWarn(logging.ComponentRegistry, "Refresh after write failed",
			zap.String("op", op),
			zap.Error(err))
		return errors.Wrapf(err, "%s succeeded but refresh failed", op)
	}
	return nil
}

// dropStaleOnNotFound refreshes when the backend no longer knows an id the
// cache still holds.
func (r *Registry) dropStaleOnNotFound(ctx context.Context, err error) {
	if !errors.IsNotFound(err) {
		return
	}
	if rerr := r.refreshLocked(ctx); rerr != nil {
		r.logger.ComponentWarn(logging.ComponentRegistry, "Refresh after not-found failed", zap.Error(rerr))
	}
}
