// Package monitor is the boundary between the log monitoring core and a
// presentation layer. It owns the buffer, the connection manager, the
// configuration registry and the export writer, pushes changes to an
// Observer and accepts user commands as plain method calls.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/logwatch/pkg/api"
	"github.com/DeBrosOfficial/logwatch/pkg/auth"
	"github.com/DeBrosOfficial/logwatch/pkg/config"
	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/export"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
	"github.com/DeBrosOfficial/logwatch/pkg/registry"
	"github.com/DeBrosOfficial/logwatch/pkg/stream"
)

// Observer receives change notifications. Calls arrive from the goroutine
// that caused the change, so implementations must be safe for concurrent
// use and should return quickly. Arguments are copies.
type Observer interface {
	OnBufferChanged(view []logs.LogEntry, stats logs.Stats)
	OnConnectionStateChanged(state stream.State)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithObserver sets the initial observer.
func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *logging.ColoredLogger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d stream.Dialer) Option {
	return func(m *Monitor) { m.dialer = d }
}

// WithBackend replaces the REST client as the registry backend.
func WithBackend(b registry.Backend) Option {
	return func(m *Monitor) { m.backend = b }
}

// Monitor wires the core components together.
type Monitor struct {
	cfg      *config.Config
	logger   *logging.ColoredLogger
	dialer   stream.Dialer
	backend  registry.Backend
	client   *api.Client
	buffer   *logs.Buffer
	manager  *stream.Manager
	registry *registry.Registry
	exporter *export.Writer
	format   export.Format

	// root scopes the live subscription to the monitor's lifetime.
	root context.Context
	stop context.CancelFunc

	mu        sync.RWMutex
	observer  Observer
	resources []string
}

// New validates cfg and builds a Monitor. Nothing connects until
// SelectResources is called.
func New(cfg *config.Config, tokens auth.TokenSource, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, errors.NewValidationError("config", strings.Join(msgs, "; "), nil)
	}
	format, err := export.ParseFormat(cfg.Export.DefaultFormat)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:    cfg,
		logger: logging.NewNopLogger(),
		format: format,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		d, err := NewDialer(cfg)
		if err != nil {
			return nil, err
		}
		m.dialer = d
	}

	if m.client, err = NewAPIClient(cfg, tokens, m.logger); err != nil {
		return nil, err
	}
	if m.backend == nil {
		m.backend = m.client
	}

	m.buffer = logs.NewBuffer(cfg.Stream.BufferCapacity,
		logs.WithDedup(cfg.Stream.Dedup),
		logs.WithLogger(m.logger),
		logs.WithListener(m.bufferChanged))

	m.manager = stream.NewManager(stream.Options{
		URL:                    cfg.StreamURL(),
		Tokens:                 tokens,
		Dialer:                 m.dialer,
		MaxRetries:             cfg.Stream.MaxRetries,
		Backoff:                stream.NewBackoff(cfg.Stream.BaseBackoff, cfg.Stream.MaxBackoff),
		HeartbeatTimeout:       cfg.Stream.HeartbeatTimeout,
		ProtocolErrorThreshold: cfg.Stream.ProtocolErrorThreshold,
		Logger:                 m.logger,
		OnState:                m.stateChanged,
	}, m.buffer)

	m.registry = registry.New(m.backend, m.logger)
	m.exporter = export.NewWriter(cfg.Export.Directory, m.logger)
	m.root, m.stop = context.WithCancel(context.Background())
	return m, nil
}

// SetObserver replaces the observer and immediately sends it the current
// buffer and connection state.
func (m *Monitor) SetObserver(o Observer) {
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
	if o == nil {
		return
	}
	snap := m.buffer.Snapshot()
	o.OnBufferChanged(snap.View, snap.Stats)
	o.OnConnectionStateChanged(m.manager.State())
}

func (m *Monitor) currentObserver() Observer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.observer
}

func (m *Monitor) bufferChanged(view []logs.LogEntry, stats logs.Stats) {
	if o := m.currentObserver(); o != nil {
		o.OnBufferChanged(view, stats)
	}
}

func (m *Monitor) stateChanged(s stream.State) {
	m.logger.ComponentDebug(logging.ComponentMonitor, "Connection state changed",
		zap.String("status", s.Status.String()),
		zap.Int("retry_count", s.RetryCount))
	if o := m.currentObserver(); o != nil {
		o.OnConnectionStateChanged(s)
	}
}

// Config returns the configuration the monitor was built with.
func (m *Monitor) Config() *config.Config { return m.cfg }

// Snapshot returns the current view and statistics.
func (m *Monitor) Snapshot() logs.Snapshot { return m.buffer.Snapshot() }

// ConnectionState returns the current connection state.
func (m *Monitor) ConnectionState() stream.State { return m.manager.State() }

// Filter returns the active buffer filter.
func (m *Monitor) Filter() logs.Filter { return m.buffer.Filter() }

// Resources returns the selected resource ids.
func (m *Monitor) Resources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.resources...)
}

// SelectResources (re)subscribes the live stream to ids. The buffer is
// kept; entries from the previous selection stay visible until cleared.
// ctx bounds only this call: the subscription runs until Disconnect,
// another selection or Close.
func (m *Monitor) SelectResources(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.manager.Subscribe(m.root, ids); err != nil {
		return err
	}
	selected := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			selected = append(selected, id)
		}
	}
	m.mu.Lock()
	m.resources = selected
	m.mu.Unlock()
	m.logger.ComponentInfo(logging.ComponentMonitor, "Resources selected", zap.Strings("resource_ids", ids))
	return nil
}

// Reconnect reopens the stream for the current selection, for use after
// the connection reached Failed.
func (m *Monitor) Reconnect() error {
	ids := m.Resources()
	if len(ids) == 0 {
		return errors.NewValidationError("resourceIds", "no resources selected", nil)
	}
	return m.manager.Resubscribe(ids)
}

// Disconnect stops streaming without closing the monitor.
func (m *Monitor) Disconnect() {
	m.manager.Unsubscribe()
}

// LoadRecent fetches up to limit historical entries for the selected
// resources and appends them to the buffer. It returns how many were
// fetched.
func (m *Monitor) LoadRecent(ctx context.Context, limit int) (int, error) {
	ids := m.Resources()
	if len(ids) == 0 {
		return 0, errors.NewValidationError("resourceIds", "no resources selected", nil)
	}
	entries, err := m.client.RecentLogs(ctx, api.LogQuery{ResourceIDs: ids, Limit: limit})
	if err != nil {
		return 0, err
	}
	m.buffer.Append(entries...)
	return len(entries), nil
}

// ApplyFilter replaces the buffer predicate.
func (m *Monitor) ApplyFilter(f logs.Filter) {
	m.buffer.SetFilter(f)
}

// Clear empties the buffer. The connection is not affected.
func (m *Monitor) Clear() {
	m.buffer.Clear()
}

// TriggerExport writes the current view to destination. An empty
// destination gets a timestamped name in the export directory; an empty
// format is inferred from the destination or falls back to the configured
// default. It returns the path written.
func (m *Monitor) TriggerExport(destination string, format export.Format) (string, error) {
	if destination == "" {
		if format == "" {
			format = m.format
		}
		destination = DefaultExportName(time.Now(), format)
	}
	if format == "" {
		format = export.InferFormat(destination, m.format)
	}
	return m.exporter.Write(m.buffer.View(), destination, format)
}

// DefaultExportName is the file name used when none is given.
func DefaultExportName(now time.Time, format export.Format) string {
	return fmt.Sprintf("logwatch-%s%s", now.Format("20060102-150405"), format.Extension())
}

// RefreshStreams reloads stream configuration from the backend.
func (m *Monitor) RefreshStreams(ctx context.Context) ([]registry.LogStream, error) {
	if err := m.registry.Refresh(ctx); err != nil {
		return nil, err
	}
	return m.registry.List(ctx, "")
}

// Streams lists cached streams, optionally for one resource.
func (m *Monitor) Streams(ctx context.Context, resourceID string) ([]registry.LogStream, error) {
	return m.registry.List(ctx, resourceID)
}

// CreateStream creates a stream configuration.
func (m *Monitor) CreateStream(ctx context.Context, name, resourceID string, level logs.Level) (registry.LogStream, error) {
	return m.registry.Create(ctx, name, resourceID, level)
}

// UpdateStream patches a stream configuration.
func (m *Monitor) UpdateStream(ctx context.Context, id string, patch registry.StreamPatch) (registry.LogStream, error) {
	return m.registry.Update(ctx, id, patch)
}

// DeleteStream removes a stream configuration.
func (m *Monitor) DeleteStream(ctx context.Context, id string) error {
	return m.registry.Delete(ctx, id)
}

// ListOverrides lists the overrides of streamID.
func (m *Monitor) ListOverrides(ctx context.Context, streamID string) ([]registry.LogStreamOverride, error) {
	return m.registry.ListOverrides(ctx, streamID)
}

// CreateOverride attaches an override to streamID.
func (m *Monitor) CreateOverride(ctx context.Context, streamID, resourceID string, overrides map[string]string) (registry.LogStreamOverride, error) {
	return m.registry.CreateOverride(ctx, streamID, resourceID, overrides)
}

// UpdateOverride replaces an override map.
func (m *Monitor) UpdateOverride(ctx context.Context, streamID, overrideID string, overrides map[string]string) (registry.LogStreamOverride, error) {
	return m.registry.UpdateOverride(ctx, streamID, overrideID, overrides)
}

// DeleteOverride removes an override.
func (m *Monitor) DeleteOverride(ctx context.Context, streamID, overrideID string) error {
	return m.registry.DeleteOverride(ctx, streamID, overrideID)
}

// ActivateStream applies a stored stream's filter to the buffer and makes
// sure its resource is part of the live selection.
func (m *Monitor) ActivateStream(ctx context.Context, id string) (registry.LogStream, error) {
	if _, err := m.registry.List(ctx, ""); err != nil {
		return registry.LogStream{}, err
	}
	ls, ok := m.registry.Get(id)
	if !ok {
		return registry.LogStream{}, errors.NewNotFoundError("log stream", id)
	}

	m.buffer.SetFilter(ls.Filter.LogFilter(ls.ResourceID))

	ids := m.Resources()
	for _, r := range ids {
		if r == ls.ResourceID {
			return ls, nil
		}
	}
	return ls, m.SelectResources(ctx, append(ids, ls.ResourceID))
}

// LabelValues lists the values of label key seen for resourceIDs, or for
// the selected resources when none are given.
func (m *Monitor) LabelValues(ctx context.Context, key string, resourceIDs ...string) ([]string, error) {
	if len(resourceIDs) == 0 {
		resourceIDs = m.Resources()
	}
	if len(resourceIDs) == 0 {
		return nil, errors.NewValidationError("resourceIds", "no resources selected", nil)
	}
	return m.client.LabelValues(ctx, resourceIDs, key)
}

// Close stops streaming. The monitor cannot subscribe again afterwards.
func (m *Monitor) Close() error {
	err := m.manager.Close()
	m.stop()
	return err
}
