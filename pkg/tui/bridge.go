package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DeBrosOfficial/logwatch/pkg/logs"
	"github.com/DeBrosOfficial/logwatch/pkg/stream"
)

// bufferMsg carries the latest view and statistics.
type bufferMsg struct {
	view  []logs.LogEntry
	stats logs.Stats
}

// stateMsg carries a connection state change.
type stateMsg struct {
	state stream.State
}

// Bridge is a monitor.Observer that coalesces notifications and forwards
// the latest of each kind to the program. Bursts of appends therefore cost
// one redraw per interval instead of one per batch.
type Bridge struct {
	mu       sync.Mutex
	buf      *bufferMsg
	states   []stream.State
	kick     chan struct{}
	interval time.Duration
}

// NewBridge creates a bridge that forwards at most once per interval.
func NewBridge(interval time.Duration) *Bridge {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Bridge{kick: make(chan struct{}, 1), interval: interval}
}

// OnBufferChanged records the newest view.
func (b *Bridge) OnBufferChanged(view []logs.LogEntry, stats logs.Stats) {
	b.mu.Lock()
	b.buf = &bufferMsg{view: view, stats: stats}
	b.mu.Unlock()
	b.signal()
}

// OnConnectionStateChanged records a state change. Every state is
// forwarded so transient states still show up.
func (b *Bridge) OnConnectionStateChanged(s stream.State) {
	b.mu.Lock()
	b.states = append(b.states, s)
	b.mu.Unlock()
	b.signal()
}

func (b *Bridge) signal() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// drain returns the pending messages, states first.
func (b *Bridge) drain() []tea.Msg {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := make([]tea.Msg, 0, len(b.states)+1)
	for _, s := range b.states {
		msgs = append(msgs, stateMsg{state: s})
	}
	b.states = nil
	if b.buf != nil {
		msgs = append(msgs, *b.buf)
		b.buf = nil
	}
	return msgs
}

// Run forwards notifications to send until ctx is done.
func (b *Bridge) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.kick:
		}
		for _, msg := range b.drain() {
			send(msg)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.interval):
		}
	}
}
