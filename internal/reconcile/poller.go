// Package reconcile bridges the gap between a checkout redirect and the
// webhook that confirms it. A Poller reads entitlement at a fixed interval
// with a hard attempt ceiling and reports a terminal outcome; it never polls
// forever and never overlaps reads.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// State is the poller lifecycle. Resolved and Exhausted are terminal for a
// checkout attempt; exhaustion is not a failure, only "undetermined within
// budget".
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateResolved  State = "resolved"
	StateExhausted State = "exhausted"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxAttempts = 10
)

// CheckFunc reads the current entitlement. Errors are tolerated: a failed
// read consumes an attempt and polling continues.
type CheckFunc func(ctx context.Context) (bool, error)

var errNotYetPremium = errors.New("premium not yet visible")

type Poller struct {
	check       CheckFunc
	interval    time.Duration
	maxAttempts int

	mu       sync.Mutex
	state    State
	attempts int
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

func WithMaxAttempts(n int) Option {
	return func(p *Poller) { p.maxAttempts = n }
}

func New(check CheckFunc, opts ...Option) *Poller {
	p := &Poller{
		check:       check,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	return p
}

// Run polls until entitlement is visible, the attempt budget runs out, or ctx
// is cancelled. Each tick waits for the previous read to finish, so polls
// never overlap. Cancellation stops the loop synchronously and returns the
// context error with the poller back in idle; exhaustion returns StateExhausted
// with a nil error.
func (p *Poller) Run(ctx context.Context) (State, error) {
	p.setState(StatePolling)

	backoff := retry.WithMaxRetries(uint64(p.maxAttempts-1), retry.NewConstant(p.interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p.mu.Lock()
		p.attempts++
		p.mu.Unlock()

		premium, err := p.check(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		if !premium {
			return retry.RetryableError(errNotYetPremium)
		}
		return nil
	})

	switch {
	case err == nil:
		p.setState(StateResolved)
		return StateResolved, nil
	case ctx.Err() != nil:
		p.setState(StateIdle)
		return StateIdle, ctx.Err()
	default:
		p.setState(StateExhausted)
		return StateExhausted, nil
	}
}

// State returns the current poller state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempts returns how many reads have been made.
func (p *Poller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
