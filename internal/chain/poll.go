package chain

import (
	"context"
	"time"

	"github.com/R3E-Network/ledger_client/internal/metrics"
)

const (
	// DefaultPollInterval is the default interval between status checks.
	DefaultPollInterval = 150 * time.Millisecond
	// DefaultConfirmTimeout bounds confirmation and slot waits when the caller passes zero.
	DefaultConfirmTimeout = 5 * time.Second
)

// Clock returns the current time.
type Clock func() time.Time

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poller repeats a check until it succeeds or a deadline passes.
type Poller struct {
	Interval time.Duration
	Now      Clock
	Sleep    SleepFunc
	// Kind labels poll metrics.
	Kind string
}

// Until runs check immediately and then every Interval until it reports done,
// returns an error, or timeout elapses. A timeout yields false with no error.
// Cancellation of ctx is returned as an error.
func (p Poller) Until(ctx context.Context, timeout time.Duration, check func(ctx context.Context) (bool, error)) (bool, error) {
	now, sleep, interval := p.Now, p.Sleep, p.Interval
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = Sleep
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	deadline := now().Add(timeout)
	for {
		if p.Kind != "" {
			metrics.RecordPoll(p.Kind)
		}
		done, err := check(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}

		remaining := deadline.Sub(now())
		if remaining <= 0 {
			return false, nil
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}
