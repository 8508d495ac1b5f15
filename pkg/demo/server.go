// Package demo serves a local stand-in for the remote log API: the stream
// configuration endpoints, the historical log listing and a live websocket
// feed of generated entries.
package demo

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/logwatch/pkg/httputil"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
	"github.com/DeBrosOfficial/logwatch/pkg/registry"
)

// DefaultResources are served when Options names none.
var DefaultResources = []string{"srv-demo-web", "srv-demo-worker"}

// Options configures a Server.
type Options struct {
	// Token, when set, is the only bearer token accepted.
	Token string
	// Resources known to the server.
	Resources []string
	// Interval between feed batches.
	Interval time.Duration
	// BatchSize is the number of entries per feed batch.
	BatchSize int
	// HeartbeatInterval between heartbeat frames; zero disables them.
	HeartbeatInterval time.Duration
	// History is the number of entries generated at startup for /logs.
	History int
	Seed    uint64
	Now     func() time.Time
	Logger  *logging.ColoredLogger
}

func (o *Options) setDefaults() {
	if len(o.Resources) == 0 {
		o.Resources = DefaultResources
	}
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 3
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
}

// Server is the demo remote.
type Server struct {
	opts   Options
	store  *Store
	gen    *Generator
	router chi.Router
	logger *logging.ColoredLogger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server with generated history.
func NewServer(opts Options) *Server {
	opts.setDefaults()
	s := &Server{
		opts:   opts,
		store:  NewStore(opts.Now, opts.Resources...),
		gen:    NewGenerator(opts.Seed, opts.Resources...),
		router: chi.NewRouter(),
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}

	if opts.History > 0 {
		now := opts.Now()
		s.store.Record(s.gen.Batch(now, opts.History, time.Duration(opts.History)*time.Second)...)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httputil.RequireBearer(s.opts.Token, "/health"))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/resources/{id}", s.handleResource)
	r.Get("/logs", s.handleLogs)
	r.Get("/logs/labels/values", s.handleLabelValues)
	r.Get("/logs/subscribe", s.handleSubscribe)

	r.Route("/logStreams", func(r chi.Router) {
		r.Get("/", s.handleListStreams)
		r.Post("/", s.handleCreateStream)
		r.Route("/{streamID}", func(r chi.Router) {
			r.Get("/", s.handleGetStream)
			r.Put("/", s.handleUpdateStream)
			r.Delete("/", s.handleDeleteStream)
			r.Get("/overrides", s.handleListOverrides)
			r.Post("/overrides", s.handleCreateOverride)
			r.Put("/overrides/{overrideID}", s.handleUpdateOverride)
			r.Delete("/overrides/{overrideID}", s.handleDeleteOverride)
		})
	})
}

// Handler returns the HTTP handler, for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store exposes the backing state.
func (s *Server) Store() *Store {
	return s.store
}

// Start listens on addr and serves in the background. It returns the base
// URL clients should use.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	srv := s.server
	s.mu.Unlock()

	s.logger.ComponentInfo(logging.ComponentDemo, "Demo server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Strings("resources", s.opts.Resources))

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.ComponentError(logging.ComponentDemo, "Demo server error", zap.Error(err))
		}
	}()
	return "http://" + ln.Addr().String(), nil
}

// Stop closes live feeds and shuts the listener down.
func (s *Server) Stop() error {
	s.DisconnectAll()

	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// DisconnectAll drops every live feed connection without a close frame.
func (s *Server) DisconnectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
		delete(s.conns, c)
	}
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.store.HasResource(id) {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "resource not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := httputil.QueryPositiveInt(r, "limit", 100)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, err.Error())
		return
	}
	query := Query{
		ResourceIDs: httputil.QueryList(r, "resourceIds"),
		Limit:       limit,
	}
	if lvl := q.Get("level"); lvl != "" {
		query.Level = logs.ParseLevel(lvl)
	}
	for key, dst := range map[string]*time.Time{"startTime": &query.Start, "endTime": &query.End} {
		if raw := q.Get(key); raw != "" {
			ts, ok := logs.ParseTimestamp(raw)
			if !ok {
				httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, key+" is not a timestamp")
				return
			}
			*dst = ts
		}
	}
	for _, id := range query.ResourceIDs {
		if !s.store.HasResource(id) {
			httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "resource "+id+" not found")
			return
		}
	}

	entries := s.store.Recent(query)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"logs":    nonNil(entries),
		"hasMore": query.Limit > 0 && len(entries) == query.Limit,
	})
}

func (s *Server) handleLabelValues(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("labelKey")
	if key == "" {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "labelKey is required")
		return
	}
	values := s.store.LabelValues(httputil.QueryList(r, "resourceIds"), key)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"values": values})
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"logStreams": nonNil(s.store.Streams())})
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "streamID")
	for _, ls := range s.store.Streams() {
		if ls.ID == id {
			httputil.WriteJSON(w, http.StatusOK, ls)
			return
		}
	}
	httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "log stream not found")
}

func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var in registry.StreamInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "name is required")
		return
	}
	if !s.store.HasResource(in.ResourceID) {
		httputil.WriteError(w, http.StatusUnprocessableEntity, httputil.CodeUnknownResource, "unknown resource "+in.ResourceID)
		return
	}
	ls := s.store.CreateStream(in)
	s.logger.ComponentInfo(logging.ComponentDemo, "Stream created", zap.String("id", ls.ID))
	httputil.WriteJSON(w, http.StatusCreated, ls)
}

func (s *Server) handleUpdateStream(w http.ResponseWriter, r *http.Request) {
	var patch registry.StreamPatch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "invalid JSON body")
		return
	}
	ls, ok := s.store.UpdateStream(chi.URLParam(r, "streamID"), patch)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "log stream not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ls)
}

func (s *Server) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteStream(chi.URLParam(r, "streamID")) {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "log stream not found")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	list, ok := s.store.Overrides(chi.URLParam(r, "streamID"))
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "log stream not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"overrides": nonNil(list)})
}

func (s *Server) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	var in registry.OverrideInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "invalid JSON body")
		return
	}
	o, ok := s.store.CreateOverride(chi.URLParam(r, "streamID"), in)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "log stream not found")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, o)
}

func (s *Server) handleUpdateOverride(w http.ResponseWriter, r *http.Request) {
	var in registry.OverrideInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "invalid JSON body")
		return
	}
	o, ok := s.store.UpdateOverride(chi.URLParam(r, "streamID"), chi.URLParam(r, "overrideID"), in)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "override not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (s *Server) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteOverride(chi.URLParam(r, "streamID"), chi.URLParam(r, "overrideID")) {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "override not found")
		return
	}
	httputil.WriteNoContent(w)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
