package stream

import (
	"time"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
)

// Status is the connection status of one monitored resource set.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of a connection. It is a value type; ResourceIDs is
// copied whenever a State leaves the manager.
type State struct {
	Status       Status
	LastError    error
	RetryCount   int
	BackoffUntil time.Time
	ResourceIDs  []string
}

func (s State) clone() State {
	s.ResourceIDs = append([]string(nil), s.ResourceIDs...)
	return s
}

// EventKind identifies an input to the state machine.
type EventKind int

const (
	EventSubscribe EventKind = iota
	EventFrameReceived
	EventAck
	EventFault
	EventHeartbeatTimeout
	EventBackoffElapsed
	EventUnsubscribe
	EventProtocolThresholdExceeded
)

// Event is an input to Transition.
type Event struct {
	Kind        EventKind
	Err         error
	ResourceIDs []string
}

// EffectKind identifies a side effect the manager must perform.
type EffectKind int

const (
	EffectOpenChannel EffectKind = iota
	EffectSendSubscribe
	EffectCloseChannel
	EffectStartTimer
	EffectCancelTimer
	EffectNotify
)

// Effect is an action requested by Transition. Delay is set for
// EffectStartTimer.
type Effect struct {
	Kind  EffectKind
	Delay time.Duration
}

// Policy carries the retry settings Transition needs.
type Policy struct {
	MaxRetries int
	Backoff    *Backoff
}

// Transition computes the next state and the effects to run for ev. It has
// no side effects of its own.
func Transition(s State, ev Event, now time.Time, p Policy) (State, []Effect) {
	switch ev.Kind {
	case EventSubscribe:
		var effects []Effect
		if s.Status == StatusConnecting || s.Status == StatusConnected {
			effects = append(effects, Effect{Kind: EffectCloseChannel})
		}
		if s.Status == StatusReconnecting {
			effects = append(effects, Effect{Kind: EffectCancelTimer})
		}
		next := State{
			Status:      StatusConnecting,
			ResourceIDs: append([]string(nil), ev.ResourceIDs...),
		}
		effects = append(effects,
			Effect{Kind: EffectOpenChannel},
			Effect{Kind: EffectSendSubscribe},
			Effect{Kind: EffectNotify},
		)
		return next, effects

	case EventFrameReceived, EventAck:
		if s.Status != StatusConnecting {
			return s, nil
		}
		s.Status = StatusConnected
		s.RetryCount = 0
		s.LastError = nil
		s.BackoffUntil = time.Time{}
		return s, []Effect{{Kind: EffectNotify}}

	case EventFault, EventHeartbeatTimeout:
		if s.Status != StatusConnecting && s.Status != StatusConnected {
			return s, nil
		}
		err := ev.Err
		if err == nil {
			op := "transport"
			if ev.Kind == EventHeartbeatTimeout {
				op = "heartbeat"
			}
			err = errors.NewConnectionFaultError(op, nil)
		}
		if !errors.ShouldRetry(err) {
			return fail(s, err)
		}
		s.RetryCount++
		s.LastError = err
		if s.RetryCount > p.MaxRetries {
			return fail(s, err)
		}
		delay := p.Backoff.Delay(s.RetryCount)
		s.Status = StatusReconnecting
		s.BackoffUntil = now.Add(delay)
		return s, []Effect{
			{Kind: EffectCloseChannel},
			{Kind: EffectStartTimer, Delay: delay},
			{Kind: EffectNotify},
		}

	case EventBackoffElapsed:
		if s.Status != StatusReconnecting {
			return s, nil
		}
		s.Status = StatusConnecting
		s.BackoffUntil = time.Time{}
		return s, []Effect{
			{Kind: EffectOpenChannel},
			{Kind: EffectSendSubscribe},
			{Kind: EffectNotify},
		}

	case EventProtocolThresholdExceeded:
		if s.Status == StatusDisconnected || s.Status == StatusFailed {
			return s, nil
		}
		return fail(s, ev.Err)

	case EventUnsubscribe:
		if s.Status == StatusDisconnected {
			return s, nil
		}
		return State{Status: StatusDisconnected}, []Effect{
			{Kind: EffectCloseChannel},
			{Kind: EffectCancelTimer},
			{Kind: EffectNotify},
		}
	}
	return s, nil
}

func fail(s State, err error) (State, []Effect) {
	s.Status = StatusFailed
	s.LastError = err
	s.BackoffUntil = time.Time{}
	return s, []Effect{
		{Kind: EffectCloseChannel},
		{Kind: EffectCancelTimer},
		{Kind: EffectNotify},
	}
}
