package stream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/logwatch/pkg/auth"
	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Sink receives decoded entries. *logs.Buffer satisfies it.
type Sink interface {
	Append(entries ...logs.LogEntry)
}

// StateListener is called on the manager goroutine after every state change.
type StateListener func(State)

// Options configures a Manager.
type Options struct {
	URL                    string
	Tokens                 auth.TokenSource
	Dialer                 Dialer
	MaxRetries             int
	Backoff                *Backoff
	HeartbeatTimeout       time.Duration
	ProtocolErrorThreshold int
	Logger                 *logging.ColoredLogger
	OnState                StateListener
}

const (
	defaultMaxRetries             = 10
	defaultHeartbeatTimeout       = 45 * time.Second
	defaultProtocolErrorThreshold = 5
	writeWait                     = 10 * time.Second

	// Application close codes mirroring HTTP 401/403.
	closeUnauthorized = 4001
	closeForbidden    = 4003
)

// Manager owns one streaming subscription and drives it through the
// connection state machine. One goroutine per active subscription performs
// all transport work; the public methods only start, replace or stop it.
type Manager struct {
	opts Options
	sink Sink

	mu     sync.RWMutex
	state  State
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	// ops serialises Subscribe/Resubscribe/Unsubscribe/Close.
	ops sync.Mutex
}

// NewManager creates a manager that appends decoded entries to sink.
func NewManager(opts Options, sink Sink) *Manager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if opts.ProtocolErrorThreshold <= 0 {
		opts.ProtocolErrorThreshold = defaultProtocolErrorThreshold
	}
	if opts.Backoff == nil {
		opts.Backoff = NewBackoff(time.Second, 30*time.Second)
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return &Manager{opts: opts, sink: sink}
}

// State returns a snapshot of the connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Subscribe starts streaming resourceIDs, replacing any active
// subscription. It returns once the connection goroutine is running; the
// outcome is observable through State and the listener. Cancelling ctx is
// equivalent to Unsubscribe.
func (m *Manager) Subscribe(ctx context.Context, resourceIDs []string) error {
	ids := cleanIDs(resourceIDs)
	if len(ids) == 0 {
		return errors.NewValidationError("resourceIds", "at least one resource id is required", resourceIDs)
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	if m.isClosed() {
		return errors.ErrClosed
	}
	prev := m.State().Status
	m.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.parent = ctx
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(runCtx, ids, prev, done)
	return nil
}

// Resubscribe tears down the current channel and reopens it for
// resourceIDs. Without an active subscription it behaves like Subscribe
// with a background context.
func (m *Manager) Resubscribe(resourceIDs []string) error {
	m.mu.RLock()
	parent := m.parent
	m.mu.RUnlock()
	if parent == nil || parent.Err() != nil {
		parent = context.Background()
	}
	return m.Subscribe(parent, resourceIDs)
}

// Unsubscribe stops streaming and moves to Disconnected, clearing retry
// state. It waits for the connection goroutine to exit.
func (m *Manager) Unsubscribe() {
	m.ops.Lock()
	defer m.ops.Unlock()
	m.stopLocked()
}

// Close unsubscribes and rejects further subscriptions.
func (m *Manager) Close() error {
	m.ops.Lock()
	defer m.ops.Unlock()
	m.stopLocked()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// stopLocked cancels the running goroutine, waits for it, and applies the
// unsubscribe transition if the goroutine had already stopped on Failed.
func (m *Manager) stopLocked() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done, m.parent = nil, nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	m.mu.Lock()
	next, effects := Transition(m.state, Event{Kind: EventUnsubscribe}, time.Now(), m.policy())
	m.state = next
	m.mu.Unlock()
	if hasNotify(effects) {
		m.notify(next)
	}
}

func (m *Manager) policy() Policy {
	return Policy{MaxRetries: m.opts.MaxRetries, Backoff: m.opts.Backoff}
}

func (m *Manager) notify(s State) {
	if m.opts.OnState != nil {
		m.opts.OnState(s.clone())
	}
}

func hasNotify(effects []Effect) bool {
	for _, e := range effects {
		if e.Kind == EffectNotify {
			return true
		}
	}
	return false
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// inbound is one message from the reader goroutine. ping marks a liveness
// signal from a websocket control frame.
type inbound struct {
	data []byte
	ping bool
}

// channel is one open websocket with its reader goroutine.
type channel struct {
	conn   *websocket.Conn
	msgs   chan inbound
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func (c *channel) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}

// session is the per-subscription state owned by the run goroutine.
type session struct {
	m        *Manager
	ctx      context.Context
	decoder  *Decoder
	ch       *channel
	backoff  *time.Timer
	hb       *time.Timer
	ping     *time.Ticker
	badCount int
	queue    []Event
}

func (m *Manager) run(ctx context.Context, ids []string, prev Status, done chan struct{}) {
	defer close(done)

	s := &session{
		m:       m,
		ctx:     ctx,
		decoder: &Decoder{},
		backoff: stoppedTimer(),
		hb:      stoppedTimer(),
		ping:    time.NewTicker(m.opts.HeartbeatTimeout / 3),
	}
	if len(ids) == 1 {
		s.decoder.DefaultResource = ids[0]
	}
	defer s.ping.Stop()
	defer s.backoff.Stop()
	defer s.hb.Stop()
	defer func() {
		if s.ch != nil {
			s.ch.close()
		}
	}()

	m.opts.Logger.ComponentInfo(logging.ComponentStream, "Subscribing",
		zap.Strings("resource_ids", ids),
		zap.String("previous", prev.String()))

	s.dispatch(Event{Kind: EventSubscribe, ResourceIDs: ids})

	for {
		if st := m.State().Status; st == StatusFailed || st == StatusDisconnected {
			return
		}

		var msgs chan inbound
		var errs chan error
		if s.ch != nil {
			msgs, errs = s.ch.msgs, s.ch.errs
		}

		select {
		case <-ctx.Done():
			s.dispatch(Event{Kind: EventUnsubscribe})
			return
		case msg := <-msgs:
			s.resetHeartbeat()
			if !msg.ping {
				s.handleFrame(msg.data)
			}
		case err := <-errs:
			s.dispatch(Event{Kind: EventFault, Err: classifyReadError(err)})
		case <-s.hb.C:
			m.opts.Logger.ComponentWarn(logging.ComponentStream, "Heartbeat timeout",
				zap.Duration("timeout", m.opts.HeartbeatTimeout))
			s.dispatch(Event{Kind: EventHeartbeatTimeout})
		case <-s.backoff.C:
			s.dispatch(Event{Kind: EventBackoffElapsed})
		case <-s.ping.C:
			if s.ch != nil {
				_ = s.ch.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait))
			}
		}
	}
}

// dispatch feeds ev through the state machine and executes the resulting
// effects. Effects that fail enqueue follow-up events, which are processed
// in order before returning.
func (s *session) dispatch(ev Event) {
	s.queue = append(s.queue, ev)
	for len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue = s.queue[1:]

		s.m.mu.Lock()
		next, effects := Transition(s.m.state, ev, time.Now(), s.m.policy())
		s.m.state = next
		s.m.mu.Unlock()

		for _, eff := range effects {
			if !s.execute(eff, next) {
				break
			}
		}
	}
}

// execute runs one effect. It returns false when the effect failed and a
// fault was queued, so the remaining effects of the batch are skipped.
func (s *session) execute(eff Effect, st State) bool {
	log := s.m.opts.Logger
	switch eff.Kind {
	case EffectOpenChannel:
		ch, err := s.open()
		if err != nil {
			log.ComponentWarn(logging.ComponentStream, "Connect failed",
				zap.Int("retry", st.RetryCount),
				zap.Error(err))
			s.queue = append(s.queue, Event{Kind: EventFault, Err: err})
			s.m.notify(st)
			return false
		}
		s.ch = ch
		s.badCount = 0
		s.resetHeartbeat()

	case EffectSendSubscribe:
		frame, err := NewSubscribeFrame(st.ResourceIDs)
		if err == nil {
			_ = s.ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = s.ch.conn.WriteMessage(websocket.TextMessage, frame)
		}
		if err != nil {
			s.queue = append(s.queue, Event{Kind: EventFault, Err: errors.NewConnectionFaultError("send subscribe", err)})
			s.m.notify(st)
			return false
		}

	case EffectCloseChannel:
		if s.ch != nil {
			s.ch.close()
			s.ch = nil
		}
		stopTimer(s.hb)

	case EffectStartTimer:
		stopTimer(s.backoff)
		s.backoff.Reset(eff.Delay)
		log.ComponentInfo(logging.ComponentStream, "Reconnecting after backoff",
			zap.Int("retry", st.RetryCount),
			zap.Duration("delay", eff.Delay),
			zap.Error(st.LastError))

	case EffectCancelTimer:
		stopTimer(s.backoff)

	case EffectNotify:
		if st.Status == StatusFailed {
			log.ComponentError(logging.ComponentStream, "Stream failed",
				zap.Int("retry", st.RetryCount),
				zap.Error(st.LastError))
		} else {
			log.ComponentDebug(logging.ComponentStream, "State changed",
				zap.String("status", st.Status.String()))
		}
		s.m.notify(st)
	}
	return true
}

// open dials the stream endpoint and starts the reader goroutine.
func (s *session) open() (*channel, error) {
	header := http.Header{}
	if s.m.opts.Tokens != nil {
		token, err := s.m.opts.Tokens.Token()
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := s.m.opts.Dialer.DialContext(s.ctx, s.m.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errors.NewAuthRejectedError(fmt.Sprintf("stream handshake rejected: %s", resp.Status), resp.StatusCode)
		}
		return nil, errors.NewConnectionFaultError("dial", err)
	}

	ch := &channel{
		conn:   conn,
		msgs:   make(chan inbound, 64),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	conn.SetPingHandler(func(appData string) error {
		_ = conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		select {
		case ch.msgs <- inbound{ping: true}:
		default:
		}
		return nil
	})
	conn.SetPongHandler(func(string) error {
		select {
		case ch.msgs <- inbound{ping: true}:
		default:
		}
		return nil
	})
	go readLoop(ch)
	return ch, nil
}

// readLoop forwards messages until the connection fails or is closed.
func readLoop(ch *channel) {
	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			select {
			case ch.errs <- err:
			case <-ch.closed:
			}
			return
		}
		select {
		case ch.msgs <- inbound{data: data}:
		case <-ch.closed:
			return
		}
	}
}

func (s *session) handleFrame(data []byte) {
	log := s.m.opts.Logger
	frame, err := s.decoder.Decode(data)
	if err != nil {
		s.badCount++
		log.ComponentWarn(logging.ComponentStream, "Dropped malformed frame",
			zap.Int("consecutive", s.badCount),
			zap.Error(err))
		if s.badCount >= s.m.opts.ProtocolErrorThreshold {
			s.dispatch(Event{
				Kind: EventProtocolThresholdExceeded,
				Err:  errors.NewProtocolError(fmt.Sprintf("%d consecutive malformed frames", s.badCount), data, err),
			})
		}
		return
	}
	s.badCount = 0

	switch frame.Kind {
	case FrameAck:
		s.dispatch(Event{Kind: EventAck})
	case FrameHeartbeat:
		s.dispatch(Event{Kind: EventFrameReceived})
	case FrameLogs:
		s.dispatch(Event{Kind: EventFrameReceived})
		if len(frame.Entries) > 0 && s.m.sink != nil {
			s.m.sink.Append(frame.Entries...)
		}
	case FrameError:
		var ferr error
		switch strings.ToLower(frame.Code) {
		case "unauthorized", "forbidden":
			ferr = errors.NewAuthRejectedError(frame.Message, 0)
		default:
			ferr = errors.NewConnectionFaultError("server error "+frame.Code, errors.New(frame.Message))
		}
		s.dispatch(Event{Kind: EventFault, Err: ferr})
	}
}

func (s *session) resetHeartbeat() {
	if s.ch == nil {
		return
	}
	stopTimer(s.hb)
	s.hb.Reset(s.m.opts.HeartbeatTimeout)
}

func classifyReadError(err error) error {
	if ce, ok := err.(*websocket.CloseError); ok {
		switch ce.Code {
		case closeUnauthorized, closeForbidden:
			return errors.NewAuthRejectedError(ce.Text, 0)
		case websocket.ClosePolicyViolation:
			if strings.Contains(strings.ToLower(ce.Text), "auth") {
				return errors.NewAuthRejectedError(ce.Text, 0)
			}
		}
	}
	return errors.NewConnectionFaultError("read", err)
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	stopTimer(t)
	return t
}

// stopTimer stops t and drains a pending fire so Reset starts clean.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
