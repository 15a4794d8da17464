package chain

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func TestPoller_ImmediateSuccess(t *testing.T) {
	clock := newFakeClock()
	p := Poller{Interval: 150 * time.Millisecond, Now: clock.Now, Sleep: clock.Sleep}
	calls := 0
	ok, err := p.Until(context.Background(), 10*time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if !ok || err != nil {
		t.Fatalf("Until() = %v, %v; want true, nil", ok, err)
	}
	if calls != 1 || len(clock.sleeps) != 0 {
		t.Errorf("calls = %d sleeps = %v; want 1 call and no sleep", calls, clock.sleeps)
	}
}

func TestPoller_Timeout(t *testing.T) {
	clock := newFakeClock()
	p := Poller{Interval: 150 * time.Millisecond, Now: clock.Now, Sleep: clock.Sleep}
	ok, err := p.Until(context.Background(), 10*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	if ok || err != nil {
		t.Fatalf("Until() = %v, %v; want false, nil", ok, err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 10*time.Millisecond {
		t.Errorf("sleeps = %v, want a single 10ms sleep capped by the deadline", clock.sleeps)
	}
}

func TestPoller_EventuallyTrue(t *testing.T) {
	clock := newFakeClock()
	p := Poller{Interval: 100 * time.Millisecond, Now: clock.Now, Sleep: clock.Sleep}
	calls := 0
	ok, err := p.Until(context.Background(), time.Second, func(context.Context) (bool, error) {
		calls++
		return calls == 4, nil
	})
	if !ok || err != nil {
		t.Fatalf("Until() = %v, %v", ok, err)
	}
	if len(clock.sleeps) != 3 {
		t.Errorf("sleeps = %d, want 3", len(clock.sleeps))
	}
}

func TestPoller_CheckErrorStops(t *testing.T) {
	clock := newFakeClock()
	boom := &TransportError{Method: "getSlot", Err: errors.New("down")}
	p := Poller{Now: clock.Now, Sleep: clock.Sleep}
	ok, err := p.Until(context.Background(), time.Second, func(context.Context) (bool, error) {
		return false, boom
	})
	if ok || !errors.Is(err, boom) {
		t.Errorf("Until() = %v, %v; want false, transport error", ok, err)
	}
	if len(clock.sleeps) != 0 {
		t.Error("poller retried after an error")
	}
}

func TestPoller_ContextCancelled(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Poller{Now: clock.Now, Sleep: clock.Sleep}
	_, err := p.Until(ctx, time.Second, func(context.Context) (bool, error) { return false, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestSleep_RealTimer(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() error = %v", err)
	}
}
