package session

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MaxLoadAttempts bounds the automatic attempts of one load. After the last
// one fails only a manual retry loads again.
const MaxLoadAttempts = 3

const (
	retryInitialInterval = 2 * time.Second
	retryMultiplier      = 1.5
	retryMaxInterval     = 5 * time.Second
)

// Phase is the lifecycle stage of a load
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
	PhaseLoadError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseLoadError:
		return "error"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*p = PhaseIdle
	case "loading":
		*p = PhaseLoading
	case "ready":
		*p = PhaseReady
	case "error":
		*p = PhaseLoadError
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// Cause tells why a load failed
type Cause int

const (
	CauseNone Cause = iota
	CauseTimeout
	CauseFailed
)

// EventKind enumerates the inputs of the load machine
type EventKind int

const (
	// EventStart begins a fresh load, e.g. on room selection.
	EventStart EventKind = iota
	// EventManualRetry is a user-triggered retry. It resets the attempt count.
	EventManualRetry
	EventSucceeded
	EventFailed
	EventWatchdog
	EventRetryDue
)

// Event is an input of the load machine. Every event except EventStart and
// EventManualRetry carries the epoch of the attempt it belongs to.
type Event struct {
	Kind  EventKind
	Epoch uint64
	Cause Cause
}

// EffectKind enumerates the side effects requested by the load machine
type EffectKind int

const (
	EffectFetch EffectKind = iota
	EffectArmWatchdog
	EffectDisarmWatchdog
	EffectScheduleRetry
	EffectCancelRetry
	EffectReady
)

// Effect is a side effect for the caller to perform.
type Effect struct {
	Kind  EffectKind
	Epoch uint64
	Delay time.Duration
}

// Load is the state of one load lifecycle. The zero value is idle.
type Load struct {
	Phase    Phase
	Epoch    uint64
	Failures int
	Cause    Cause
	// RetryPending is set while an automatic retry is scheduled.
	RetryPending bool
}

// Accepts reports whether a completion for epoch may still be applied.
func (l Load) Accepts(epoch uint64) bool {
	return l.Phase == PhaseLoading && l.Epoch == epoch
}

// Exhausted reports whether the load failed and no automatic retry is left.
func (l Load) Exhausted() bool {
	return l.Phase == PhaseLoadError && !l.RetryPending
}

// Apply returns the state after ev and the effects it requires. Events of a
// superseded epoch, or that do not fit the current phase, change nothing.
func (l Load) Apply(ev Event) (Load, []Effect) {
	switch ev.Kind {
	case EventStart, EventManualRetry:
		next := Load{Phase: PhaseLoading, Epoch: l.Epoch + 1}
		return next, []Effect{
			{Kind: EffectDisarmWatchdog},
			{Kind: EffectCancelRetry},
			{Kind: EffectFetch, Epoch: next.Epoch},
			{Kind: EffectArmWatchdog, Epoch: next.Epoch},
		}

	case EventRetryDue:
		if ev.Epoch != l.Epoch || l.Phase != PhaseLoadError || !l.RetryPending {
			return l, nil
		}
		next := Load{Phase: PhaseLoading, Epoch: l.Epoch + 1, Failures: l.Failures}
		return next, []Effect{
			{Kind: EffectFetch, Epoch: next.Epoch},
			{Kind: EffectArmWatchdog, Epoch: next.Epoch},
		}

	case EventSucceeded:
		if !l.Accepts(ev.Epoch) {
			return l, nil
		}
		next := Load{Phase: PhaseReady, Epoch: l.Epoch}
		return next, []Effect{
			{Kind: EffectDisarmWatchdog},
			{Kind: EffectReady, Epoch: next.Epoch},
		}

	case EventFailed, EventWatchdog:
		if !l.Accepts(ev.Epoch) {
			return l, nil
		}
		cause := CauseTimeout
		if ev.Kind == EventFailed {
			cause = ev.Cause
			if cause == CauseNone {
				cause = CauseFailed
			}
		}
		next := Load{
			Phase:    PhaseLoadError,
			Epoch:    l.Epoch,
			Failures: l.Failures + 1,
			Cause:    cause,
		}
		effects := []Effect{{Kind: EffectDisarmWatchdog}}
		if next.Failures < MaxLoadAttempts {
			next.RetryPending = true
			effects = append(effects, Effect{
				Kind:  EffectScheduleRetry,
				Epoch: next.Epoch,
				Delay: RetryDelay(next.Failures),
			})
		}
		return next, effects
	}
	return l, nil
}

// RetryDelay returns the wait before the automatic retry that follows the
// given number of consecutive failures: 2s, 3s, 4.5s, then capped at 5s.
func RetryDelay(failures int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.Multiplier = retryMultiplier
	b.MaxInterval = retryMaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := retryInitialInterval
	for i := 0; i < failures; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
