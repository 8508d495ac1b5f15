package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/logwatch/pkg/auth"
	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

type testServer struct {
	*httptest.Server
	conns  atomic.Int32
	subs   chan SubscribeFrame
	tokens chan string
}

// newTestServer starts a websocket server. handler runs after the
// subscribe frame is read; n is the 1-based connection number.
func newTestServer(t *testing.T, handler func(n int, conn *websocket.Conn)) *testServer {
	t.Helper()
	ts := &testServer{subs: make(chan SubscribeFrame, 32), tokens: make(chan string, 32)}
	upgrader := websocket.Upgrader{}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(ts.conns.Add(1))
		select {
		case ts.tokens <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub SubscribeFrame
		if err := json.Unmarshal(data, &sub); err == nil {
			ts.subs <- sub
		}
		handler(n, conn)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) saw(status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s.Status == status {
			return true
		}
	}
	return false
}

func fastOptions(url string, rec *stateRecorder) Options {
	opts := Options{
		URL:              url,
		Tokens:           auth.StaticToken("test-key"),
		MaxRetries:       5,
		Backoff:          NewBackoffWithRand(10*time.Millisecond, 50*time.Millisecond, func() float64 { return 0 }),
		HeartbeatTimeout: 2 * time.Second,
	}
	if rec != nil {
		opts.OnState = rec.record
	}
	return opts
}

func waitStatus(t *testing.T, m *Manager, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State().Status == want },
		3*time.Second, 5*time.Millisecond, "status never reached %v (last %v)", want, m.State().Status)
}

func TestManagerStreamsIntoBuffer(t *testing.T) {
	ts := newTestServer(t, func(n int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ack"}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"logs","logs":[{"message":"one","level":"info"},{"message":"two","level":"error"}]}`))
		drain(conn)
	})

	buf := logs.NewBuffer(100)
	m := NewManager(fastOptions(ts.wsURL(), nil), buf)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"srv-1"}))
	waitStatus(t, m, StatusConnected)

	require.Eventually(t, func() bool { return len(buf.View()) == 2 }, 2*time.Second, 5*time.Millisecond)
	view := buf.View()
	assert.Equal(t, "one", view[0].Message)
	assert.Equal(t, "srv-1", view[0].ResourceID)
	assert.Equal(t, logs.LevelError, view[1].Level)

	sub := <-ts.subs
	assert.Equal(t, "subscribe", sub.Type)
	assert.Equal(t, []string{"srv-1"}, sub.ResourceIDs)
	assert.Equal(t, "Bearer test-key", <-ts.tokens)
	assert.Equal(t, 0, m.State().RetryCount)
}

func TestManagerReconnectsAfterDrop(t *testing.T) {
	ts := newTestServer(t, func(n int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"hello"}`))
		if n == 1 {
			return // drop the first connection
		}
		drain(conn)
	})

	rec := &stateRecorder{}
	buf := logs.NewBuffer(100)
	m := NewManager(fastOptions(ts.wsURL(), rec), buf)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"srv-1", "srv-2"}))

	require.Eventually(t, func() bool {
		return ts.conns.Load() >= 2 && m.State().Status == StatusConnected
	}, 3*time.Second, 5*time.Millisecond)

	assert.True(t, rec.saw(StatusReconnecting), "expected a reconnecting state")
	assert.Equal(t, 0, m.State().RetryCount)

	first, second := <-ts.subs, <-ts.subs
	assert.Equal(t, first.ResourceIDs, second.ResourceIDs, "resource set preserved across reconnect")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestManagerHandshakeAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewManager(fastOptions("ws"+strings.TrimPrefix(srv.URL, "http"), nil), logs.NewBuffer(10))
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"srv-1"}))
	waitStatus(t, m, StatusFailed)
	st := m.State()
	assert.True(t, errors.IsAuthRejected(st.LastError), "last error: %v", st.LastError)
	assert.Equal(t, 0, st.RetryCount)
}

func TestManagerErrorFrameUnauthorized(t *testing.T) {
	ts := newTestServer(t, func(n int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","code":"unauthorized","message":"token revoked"}`))
		drain(conn)
	})

	m := NewManager(fastOptions(ts.wsURL(), nil), logs.NewBuffer(10))
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"srv-1"}))
	waitStatus(t, m, StatusFailed)
	assert.True(t, errors.IsAuthRejected(m.State().LastError))
	assert.Equal(t, int32(1), ts.conns.Load())
}

func TestManagerRetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := fastOptions("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	opts.MaxRetries = 3
	m := NewManager(opts, logs.NewBuffer(10))
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"srv-1"}))
	waitStatus(t, m, StatusFailed)

	st := m.State()
	assert.Equal(t, 4, st.RetryCount)
	assert.True(t, errors.IsConnectionFault(st.LastError))
	assert.Equal(t, int32(4), attempts.Load())
}

func TestManagerProtocolThreshold(t *testing.T) {
	ts := newTestServer(t, func(n int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"ok"}`))
		for i := 0; i < 3; i++ {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		}
		drain(conn)
	})

	opts := fastOptions(ts.wsURL(), nil)
	opts.ProtocolErrorThreshold = 3
	buf := logs.NewBuffer(10)
	m := NewManager(opts, buf)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"srv-1"}))
	waitStatus(t, m, StatusFailed)
	assert.True(t, errors.IsProtocol(m.State().LastError))
	assert.Len(t, buf.View(), 1)
}

func TestManagerMalformedBelowThresholdIsDropped(t *testing.T) {
	ts := newTestServer(t, func(n int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"a"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`also garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"b"}`))
		drain(conn)
	})

	opts := fastOptions(ts.wsURL(), nil)
	opts.ProtocolErrorThreshold = 2
	buf := logs.NewBuffer(10)
	m := NewManager(opts, buf)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"srv-1"}))
	require.Eventually(t, func() bool { return len(buf.View()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusConnected, m.State().Status)
}

func TestManagerHeartbeatTimeout(t *testing.T) {
	ts := newTestServer(t, func(n int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ack"}`))
		// Stay silent without reading, so client pings go unanswered.
		time.Sleep(time.Second)
	})

	rec := &stateRecorder{}
	opts := fastOptions(ts.wsURL(), rec)
	opts.HeartbeatTimeout = 150 * time.Millisecond
	m := NewManager(opts, logs.NewBuffer(10))
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"srv-1"}))
	require.Eventually(t, func() bool { return rec.saw(StatusReconnecting) }, 3*time.Second, 5*time.Millisecond)
	assert.True(t, rec.saw(StatusConnected))
}

func TestManagerUnsubscribeAndClose(t *testing.T) {
	ts := newTestServer(t, func(n int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ack"}`))
		drain(conn)
	})

	m := NewManager(fastOptions(ts.wsURL(), nil), logs.NewBuffer(10))
	require.NoError(t, m.Subscribe(context.Background(), []string{"srv-1"}))
	waitStatus(t, m, StatusConnected)

	m.Unsubscribe()
	st := m.State()
	assert.Equal(t, StatusDisconnected, st.Status)
	assert.Equal(t, 0, st.RetryCount)
	assert.Empty(t, st.ResourceIDs)

	require.NoError(t, m.Close())
	err := m.Subscribe(context.Background(), []string{"srv-1"})
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestManagerResubscribeSwitchesResources(t *testing.T) {
	ts := newTestServer(t, func(n int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ack"}`))
		drain(conn)
	})

	m := NewManager(fastOptions(ts.wsURL(), nil), logs.NewBuffer(10))
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"srv-1"}))
	waitStatus(t, m, StatusConnected)
	require.NoError(t, m.Resubscribe([]string{"srv-2", "srv-3"}))
	waitStatus(t, m, StatusConnected)

	assert.Equal(t, []string{"srv-1"}, (<-ts.subs).ResourceIDs)
	assert.Equal(t, []string{"srv-2", "srv-3"}, (<-ts.subs).ResourceIDs)
	assert.Equal(t, []string{"srv-2", "srv-3"}, m.State().ResourceIDs)
}

func TestManagerContextCancelDisconnects(t *testing.T) {
	ts := newTestServer(t, func(n int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ack"}`))
		drain(conn)
	})

	m := NewManager(fastOptions(ts.wsURL(), nil), logs.NewBuffer(10))
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Subscribe(ctx, []string{"srv-1"}))
	waitStatus(t, m, StatusConnected)
	cancel()
	waitStatus(t, m, StatusDisconnected)
}

func TestManagerRejectsEmptyResources(t *testing.T) {
	m := NewManager(Options{URL: "ws://unused"}, nil)
	err := m.Subscribe(context.Background(), []string{" ", ""})
	assert.True(t, errors.IsValidation(err))
}
