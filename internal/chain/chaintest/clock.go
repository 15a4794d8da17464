package chaintest

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/pkg/logger"
)

// Clock is a manual clock whose Sleep advances time instantly.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	sleeps int
}

// NewClock returns a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
	c.mu.Unlock()
	return nil
}

// Slept returns the total simulated sleep and the number of sleeps.
func (c *Clock) Slept() (time.Duration, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept, c.sleeps
}

// ManagerConfig returns a manager configuration wired to l's descriptors and
// the manual clock, with logging discarded.
func (l *Ledger) ManagerConfig(clock *Clock) chain.ManagerConfig {
	return chain.ManagerConfig{
		Commitment: chain.CommitmentConfirmed,
		Resolver:   l.registry,
		Logger:     logger.NewDiscard(),
		Clock:      clock.Now,
		Sleep:      clock.Sleep,
	}
}

// NewManager returns a manager over l driven by a fresh manual clock.
func (l *Ledger) NewManager() (*chain.Manager, *Clock) {
	clock := NewClock()
	return chain.NewManager(l, l.ManagerConfig(clock)), clock
}

// Fund creates addr with lamports, bypassing airdrop bookkeeping.
func (l *Ledger) Fund(addr chain.Address, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[addr]
	if !ok {
		a = &chain.AccountInfo{Owner: chain.SystemProgramID}
		l.accounts[addr] = a
	}
	a.Lamports += lamports
}

// Keypair returns a deterministic keypair for tests.
func Keypair(seed byte) *chain.Keypair {
	b := make([]byte, 32)
	for i := range b {
		b[i] = seed
	}
	kp, err := chain.KeypairFromSeed(b)
	if err != nil {
		panic(err)
	}
	return kp
}
