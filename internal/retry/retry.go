// Package retry drives a bounded retry loop as an explicit state machine.
//
// Whether an error is worth retrying is decided where it originates: errors
// expose RetryableStatus() (see objectstore.Error). Anything that does not is
// treated as fatal.
package retry

import (
	"context"
	"errors"
	"time"
)

// State is a step of the retry state machine.
type State int

const (
	StateAttempt State = iota
	StateBackoff
	StateSucceeded
	StateFailed
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempt:
		return "attempt"
	case StateBackoff:
		return "backoff"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Classified is implemented by errors that carry a retryability decision.
type Classified interface {
	RetryableStatus() bool
}

// IsRetryable reports whether err (or anything it wraps) was classified retryable.
func IsRetryable(err error) bool {
	var c Classified
	if errors.As(err, &c) {
		return c.RetryableStatus()
	}
	return false
}

// Policy bounds the number of retries and the backoff between them.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultPolicy retries three times, waiting 1s, 2s and 4s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second, Multiplier: 2}
}

// Backoff returns the wait before retry n (1-based).
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= mult
	}
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Transition is reported to an Observer on every state change.
type Transition struct {
	Attempt int
	From    State
	To      State
	Wait    time.Duration
	Err     error
}

// Observer receives state transitions, typically for logging.
type Observer func(Transition)

// Outcome summarises a finished run.
type Outcome struct {
	State    State
	Attempts int
	Err      error
}

// Runner executes operations under a Policy.
type Runner struct {
	Policy   Policy
	Observer Observer
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner returns a Runner with a timer-based sleep.
func NewRunner(p Policy, obs Observer) *Runner {
	return &Runner{Policy: p, Observer: obs, Sleep: sleepContext}
}

// Do runs op until it succeeds, fails fatally, or the retry ceiling is hit.
func (r *Runner) Do(ctx context.Context, op func(ctx context.Context) error) Outcome {
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	maxAttempts := r.Policy.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	state := StateAttempt
	attempt := 0
	var lastErr error
	for {
		switch state {
		case StateAttempt:
			attempt++
			lastErr = op(ctx)
			switch {
			case lastErr == nil:
				state = r.move(attempt, state, StateSucceeded, 0, nil)
			case !IsRetryable(lastErr):
				state = r.move(attempt, state, StateFailed, 0, lastErr)
			case attempt >= maxAttempts:
				state = r.move(attempt, state, StateExhausted, 0, lastErr)
			default:
				state = r.move(attempt, state, StateBackoff, r.Policy.Backoff(attempt), lastErr)
			}
		case StateBackoff:
			if err := sleep(ctx, r.Policy.Backoff(attempt)); err != nil {
				lastErr = errors.Join(lastErr, err)
				state = r.move(attempt, state, StateFailed, 0, lastErr)
				continue
			}
			state = r.move(attempt, state, StateAttempt, 0, nil)
		default:
			return Outcome{State: state, Attempts: attempt, Err: lastErr}
		}
	}
}

func (r *Runner) move(attempt int, from, to State, wait time.Duration, err error) State {
	if r.Observer != nil {
		r.Observer(Transition{Attempt: attempt, From: from, To: to, Wait: wait, Err: err})
	}
	return to
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
