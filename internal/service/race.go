package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

// raceTimeout runs call under an abort deadline and returns once it settles or
// raceAfter elapses, whichever comes first. A call aborted by its deadline and
// a lost race both report domain.ErrTimeout. The losing call is cancelled and
// its eventual result discarded.
func raceTimeout[T any](
	ctx context.Context,
	clock clockwork.Clock,
	abortAfter, raceAfter time.Duration,
	call func(ctx context.Context) (T, error),
) (T, error) {
	type result struct {
		value T
		err   error
	}

	callCtx, cancel := context.WithCancelCause(ctx)
	abort := clock.AfterFunc(abortAfter, func() { cancel(domain.ErrTimeout) })
	race := clock.NewTimer(raceAfter)
	defer func() {
		abort.Stop()
		race.Stop()
		cancel(context.Canceled)
	}()

	done := make(chan result, 1)
	go func() {
		v, err := call(callCtx)
		if err != nil && errors.Is(context.Cause(callCtx), domain.ErrTimeout) {
			err = fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		done <- result{value: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		return r.value, r.err
	case <-race.Chan():
		return zero, domain.ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
