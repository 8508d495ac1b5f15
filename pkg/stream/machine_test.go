package stream

import (
	"testing"
	"time"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries: maxRetries,
		Backoff:    NewBackoffWithRand(time.Second, 30*time.Second, func() float64 { return 0.5 }),
	}
}

func kinds(effects []Effect) []EffectKind {
	out := make([]EffectKind, len(effects))
	for i, e := range effects {
		out[i] = e.Kind
	}
	return out
}

func hasEffect(effects []Effect, k EffectKind) bool {
	for _, e := range effects {
		if e.Kind == k {
			return true
		}
	}
	return false
}

func TestTransitionTable(t *testing.T) {
	fault := errors.NewConnectionFaultError("read", nil)
	auth := errors.NewAuthRejectedError("bad key", 401)

	tests := []struct {
		name       string
		from       State
		event      Event
		wantStatus Status
		wantRetry  int
		wantEffect []EffectKind
	}{
		{
			name:       "subscribe opens channel",
			from:       State{},
			event:      Event{Kind: EventSubscribe, ResourceIDs: []string{"srv-1"}},
			wantStatus: StatusConnecting,
			wantEffect: []EffectKind{EffectOpenChannel, EffectSendSubscribe, EffectNotify},
		},
		{
			name:       "first frame connects",
			from:       State{Status: StatusConnecting, RetryCount: 3},
			event:      Event{Kind: EventFrameReceived},
			wantStatus: StatusConnected,
			wantRetry:  0,
			wantEffect: []EffectKind{EffectNotify},
		},
		{
			name:       "ack connects",
			from:       State{Status: StatusConnecting},
			event:      Event{Kind: EventAck},
			wantStatus: StatusConnected,
			wantEffect: []EffectKind{EffectNotify},
		},
		{
			name:       "frame while connected is a no-op",
			from:       State{Status: StatusConnected},
			event:      Event{Kind: EventFrameReceived},
			wantStatus: StatusConnected,
		},
		{
			name:       "fault while connected backs off",
			from:       State{Status: StatusConnected},
			event:      Event{Kind: EventFault, Err: fault},
			wantStatus: StatusReconnecting,
			wantRetry:  1,
			wantEffect: []EffectKind{EffectCloseChannel, EffectStartTimer, EffectNotify},
		},
		{
			name:       "heartbeat timeout backs off",
			from:       State{Status: StatusConnected},
			event:      Event{Kind: EventHeartbeatTimeout},
			wantStatus: StatusReconnecting,
			wantRetry:  1,
			wantEffect: []EffectKind{EffectCloseChannel, EffectStartTimer, EffectNotify},
		},
		{
			name:       "dial failure while connecting backs off",
			from:       State{Status: StatusConnecting, RetryCount: 2},
			event:      Event{Kind: EventFault, Err: fault},
			wantStatus: StatusReconnecting,
			wantRetry:  3,
			wantEffect: []EffectKind{EffectCloseChannel, EffectStartTimer, EffectNotify},
		},
		{
			name:       "backoff elapsed reconnects",
			from:       State{Status: StatusReconnecting, RetryCount: 2},
			event:      Event{Kind: EventBackoffElapsed},
			wantStatus: StatusConnecting,
			wantRetry:  2,
			wantEffect: []EffectKind{EffectOpenChannel, EffectSendSubscribe, EffectNotify},
		},
		{
			name:       "auth rejection fails immediately",
			from:       State{Status: StatusConnecting},
			event:      Event{Kind: EventFault, Err: auth},
			wantStatus: StatusFailed,
			wantEffect: []EffectKind{EffectCloseChannel, EffectCancelTimer, EffectNotify},
		},
		{
			name:       "non-retryable fault fails immediately",
			from:       State{Status: StatusConnected},
			event:      Event{Kind: EventFault, Err: errors.NewValidationError("token", "no API key configured", nil)},
			wantStatus: StatusFailed,
			wantEffect: []EffectKind{EffectCloseChannel, EffectCancelTimer, EffectNotify},
		},
		{
			name:       "auth rejection wrapped in a fault still fails",
			from:       State{Status: StatusConnecting},
			event:      Event{Kind: EventFault, Err: errors.NewConnectionFaultError("dial", auth)},
			wantStatus: StatusFailed,
			wantEffect: []EffectKind{EffectCloseChannel, EffectCancelTimer, EffectNotify},
		},
		{
			name:       "retries exhausted fails",
			from:       State{Status: StatusConnecting, RetryCount: 10},
			event:      Event{Kind: EventFault, Err: fault},
			wantStatus: StatusFailed,
			wantRetry:  11,
			wantEffect: []EffectKind{EffectCloseChannel, EffectCancelTimer, EffectNotify},
		},
		{
			name:       "protocol threshold fails",
			from:       State{Status: StatusConnected},
			event:      Event{Kind: EventProtocolThresholdExceeded, Err: errors.NewProtocolError("bad frames", nil, nil)},
			wantStatus: StatusFailed,
			wantEffect: []EffectKind{EffectCloseChannel, EffectCancelTimer, EffectNotify},
		},
		{
			name:       "failed ignores faults",
			from:       State{Status: StatusFailed, RetryCount: 11},
			event:      Event{Kind: EventFault, Err: fault},
			wantStatus: StatusFailed,
			wantRetry:  11,
		},
		{
			name:       "unsubscribe from reconnecting clears state",
			from:       State{Status: StatusReconnecting, RetryCount: 4, BackoffUntil: now.Add(time.Minute)},
			event:      Event{Kind: EventUnsubscribe},
			wantStatus: StatusDisconnected,
			wantEffect: []EffectKind{EffectCloseChannel, EffectCancelTimer, EffectNotify},
		},
		{
			name:       "unsubscribe from failed",
			from:       State{Status: StatusFailed, RetryCount: 11},
			event:      Event{Kind: EventUnsubscribe},
			wantStatus: StatusDisconnected,
			wantEffect: []EffectKind{EffectCloseChannel, EffectCancelTimer, EffectNotify},
		},
		{
			name:       "resubscribe while connected tears down first",
			from:       State{Status: StatusConnected, ResourceIDs: []string{"a"}},
			event:      Event{Kind: EventSubscribe, ResourceIDs: []string{"b"}},
			wantStatus: StatusConnecting,
			wantEffect: []EffectKind{EffectCloseChannel, EffectOpenChannel, EffectSendSubscribe, EffectNotify},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects := Transition(tt.from, tt.event, now, testPolicy(10))
			if got.Status != tt.wantStatus {
				t.Errorf("status = %v; want %v", got.Status, tt.wantStatus)
			}
			if got.RetryCount != tt.wantRetry {
				t.Errorf("retry = %d; want %d", got.RetryCount, tt.wantRetry)
			}
			gotKinds := kinds(effects)
			if len(gotKinds) != len(tt.wantEffect) {
				t.Fatalf("effects = %v; want %v", gotKinds, tt.wantEffect)
			}
			for i := range gotKinds {
				if gotKinds[i] != tt.wantEffect[i] {
					t.Fatalf("effects = %v; want %v", gotKinds, tt.wantEffect)
				}
			}
		})
	}
}

func TestFirstFaultBackoffWindow(t *testing.T) {
	for _, j := range []float64{0, 0.5, 0.999} {
		p := Policy{MaxRetries: 10, Backoff: NewBackoffWithRand(time.Second, 30*time.Second, func() float64 { return j })}
		s, effects := Transition(State{Status: StatusConnected}, Event{Kind: EventFault}, now, p)
		if s.RetryCount != 1 {
			t.Fatalf("retry = %d", s.RetryCount)
		}
		wait := s.BackoffUntil.Sub(now)
		if wait < time.Second || wait > 1200*time.Millisecond {
			t.Errorf("BackoffUntil - now = %v; want within [1s, 1.2s]", wait)
		}
		if effects[1].Delay != wait {
			t.Errorf("timer delay %v != backoff %v", effects[1].Delay, wait)
		}
	}
}

func TestReconnectCycleResetsRetries(t *testing.T) {
	p := testPolicy(10)
	s, _ := Transition(State{}, Event{Kind: EventSubscribe, ResourceIDs: []string{"srv-1"}}, now, p)

	for i := 0; i < 5; i++ {
		s, _ = Transition(s, Event{Kind: EventFault}, now, p)
		if s.Status != StatusReconnecting {
			t.Fatalf("iteration %d: status %v", i, s.Status)
		}
		s, _ = Transition(s, Event{Kind: EventBackoffElapsed}, s.BackoffUntil, p)
		if s.ResourceIDs[0] != "srv-1" {
			t.Fatalf("resource set not preserved: %v", s.ResourceIDs)
		}
	}
	if s.RetryCount != 5 {
		t.Fatalf("retry = %d; want 5", s.RetryCount)
	}

	s, _ = Transition(s, Event{Kind: EventFrameReceived}, now, p)
	if s.Status != StatusConnected || s.RetryCount != 0 {
		t.Fatalf("expected connected with retry 0, got %v/%d", s.Status, s.RetryCount)
	}
}

func TestBackoffCappedAfterRepeatedFailures(t *testing.T) {
	p := Policy{MaxRetries: 10, Backoff: NewBackoffWithRand(time.Second, 30*time.Second, func() float64 { return 0 })}
	s := State{Status: StatusConnecting}
	var last time.Duration
	for i := 0; i < 8; i++ {
		var effects []Effect
		s, effects = Transition(s, Event{Kind: EventFault}, now, p)
		if !hasEffect(effects, EffectStartTimer) {
			t.Fatalf("no timer at retry %d", s.RetryCount)
		}
		d := s.BackoffUntil.Sub(now)
		if d < last {
			t.Fatalf("backoff decreased at retry %d: %v < %v", s.RetryCount, d, last)
		}
		last = d
		s, _ = Transition(s, Event{Kind: EventBackoffElapsed}, now, p)
	}
	if last != 30*time.Second {
		t.Errorf("backoff after 8 failures = %v; want 30s", last)
	}
}

func TestStatusString(t *testing.T) {
	if StatusReconnecting.String() != "reconnecting" || Status(99).String() != "unknown" {
		t.Error("unexpected status names")
	}
}
