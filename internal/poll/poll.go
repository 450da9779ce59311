// Package poll implements the bounded retry-until-ready loop used for every cross-service
// wait. It knows nothing about what it polls.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/errdefs"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/metrics"
)

// ErrInvalidOptions is returned before any attempt when Interval or Timeout is not positive.
var ErrInvalidOptions = errors.New("poll: invalid options")

var errNotReady = errors.New("not ready")

// Options configures one poll loop. Interval and Timeout are mandatory.
type Options struct {
	Interval    time.Duration
	Timeout     time.Duration
	Description string

	// Abort marks errors that must end the loop immediately instead of being swallowed.
	// When nil every action error is retried.
	Abort func(error) bool

	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

// WithDescription returns a copy of o labelled for a specific wait.
func (o Options) WithDescription(description string) Options {
	o.Description = description
	return o
}

func (o Options) validate() error {
	if o.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidOptions, o.Interval)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidOptions, o.Timeout)
	}
	return nil
}

// Until calls action at most once per Interval until ready accepts its result, and returns
// that result. Errors from action are swallowed and retried after the interval. The first
// attempt always happens, even when Timeout is shorter than Interval. When no result is
// accepted within Timeout, Until returns an *errdefs.TimeoutError.
func Until[T any](ctx context.Context, opts Options, action func(context.Context) (T, error), ready func(T) bool) (T, error) {
	var zero T
	if err := opts.validate(); err != nil {
		return zero, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("wait", opts.Description).Logger()

	var (
		attempts int
		last     error
		aborted  bool
	)
	operation := func() (T, error) {
		attempts++
		result, err := action(ctx)
		if err != nil {
			if opts.Abort != nil && opts.Abort(err) {
				aborted = true
				return zero, backoff.Permanent(err)
			}
			last = err
			return zero, err
		}
		if !ready(result) {
			last = nil
			return zero, errNotReady
		}
		return result, nil
	}

	started := time.Now()
	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(opts.Interval)),
		backoff.WithMaxElapsedTime(opts.Timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug().Err(err).Int("attempt", attempts).Dur("next", next).Msg("Still waiting")
		}),
	)
	elapsed := time.Since(started)

	switch {
	case err == nil:
		opts.Metrics.ObservePoll(metrics.OutcomeReady, attempts, elapsed)
		logger.Debug().Int("attempts", attempts).Dur("elapsed", elapsed).Msg("Wait satisfied")
		return result, nil
	case aborted:
		opts.Metrics.ObservePoll(metrics.OutcomeAborted, attempts, elapsed)
		return zero, err
	case ctx.Err() != nil:
		opts.Metrics.ObservePoll(metrics.OutcomeCanceled, attempts, elapsed)
		return zero, fmt.Errorf("waiting for %s: %w", opts.Description, ctx.Err())
	default:
		opts.Metrics.ObservePoll(metrics.OutcomeTimeout, attempts, elapsed)
		return zero, &errdefs.TimeoutError{
			Description: opts.Description,
			Attempts:    attempts,
			Elapsed:     elapsed,
			Last:        last,
		}
	}
}
