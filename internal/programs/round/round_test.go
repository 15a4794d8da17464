package round_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/chain/chaintest"
	"github.com/R3E-Network/ledger_client/internal/programs/round"
)

func setup(t *testing.T, opts ...chaintest.Option) (*round.Client, *chaintest.Ledger) {
	t.Helper()
	ledger := chaintest.New(opts...)
	m, _ := ledger.NewManager()
	c, err := round.New(m, ledger.Registry())
	require.NoError(t, err)
	return c, ledger
}

func TestRoundLifecycle(t *testing.T) {
	ctx := context.Background()
	c, ledger := setup(t, chaintest.WithSlotsPerQuery(1))
	authority, payer := chaintest.Keypair(1), chaintest.Keypair(2)
	start := ledger.Slot() + 5

	res, err := c.Initialise(ctx, authority, start)
	require.NoError(t, err)
	require.True(t, res.Confirmed)

	acc, err := c.Get(ctx, authority.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, start, acc.StartSlot)
	assert.Equal(t, authority.PublicKey(), acc.Authority)
	assert.Equal(t, round.StatusPending, acc.Status())

	_, err = c.Activate(ctx, payer, authority.PublicKey())
	require.ErrorIs(t, err, round.ErrInvalidRoundActivationSlot)
	assert.True(t, round.Retryable(err))

	ok, err := c.WaitUntilActivatable(ctx, authority.PublicKey(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.Activate(ctx, payer, authority.PublicKey())
	require.NoError(t, err)

	acc, err = c.Get(ctx, authority.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, round.StatusActive, acc.Status())
	require.NotNil(t, acc.ActivatedBy)
	assert.Equal(t, payer.PublicKey(), *acc.ActivatedBy)
	assert.GreaterOrEqual(t, *acc.ActivatedAt, acc.StartSlot)

	_, err = c.Activate(ctx, payer, authority.PublicKey())
	assert.ErrorIs(t, err, round.ErrRoundAlreadyActive)
	assert.False(t, round.Retryable(err))

	_, err = c.Complete(ctx, authority)
	require.NoError(t, err)

	acc, err = c.Get(ctx, authority.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, round.StatusComplete, acc.Status())
	assert.GreaterOrEqual(t, *acc.CompletedAt, *acc.ActivatedAt)

	_, err = c.Complete(ctx, authority)
	assert.ErrorIs(t, err, round.ErrRoundAlreadyComplete)
	_, err = c.Activate(ctx, payer, authority.PublicKey())
	assert.ErrorIs(t, err, round.ErrRoundAlreadyActive)
}

func TestInitialiseRejectsPastStart(t *testing.T) {
	ctx := context.Background()
	c, ledger := setup(t, chaintest.WithSlot(100))
	authority := chaintest.Keypair(3)

	for _, start := range []uint64{0, 99, ledger.Slot()} {
		_, err := c.Initialise(ctx, authority, start)
		require.ErrorIs(t, err, round.ErrInvalidStartSlot, "start %d", start)
		assert.False(t, round.Retryable(err))
	}
	_, err := c.Get(ctx, authority.PublicKey())
	assert.ErrorIs(t, err, round.ErrAccountNotInitialized, "rejected initialise left an account behind")
}

func TestInitialiseTwice(t *testing.T) {
	ctx := context.Background()
	c, ledger := setup(t)
	authority := chaintest.Keypair(4)

	_, err := c.Initialise(ctx, authority, ledger.Slot()+10)
	require.NoError(t, err)
	_, err = c.Initialise(ctx, authority, ledger.Slot()+20)
	assert.ErrorIs(t, err, round.ErrAlreadyInitialized)
}

func TestCompleteBeforeActivation(t *testing.T) {
	ctx := context.Background()
	c, ledger := setup(t)
	authority := chaintest.Keypair(5)

	_, err := c.Initialise(ctx, authority, ledger.Slot()+10)
	require.NoError(t, err)
	_, err = c.Complete(ctx, authority)
	require.ErrorIs(t, err, round.ErrRoundNotYetActive)

	var pe *chain.ProgramError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "RoundNotYetActive", pe.Name)
	assert.Equal(t, c.ProgramID(), pe.Program)
	assert.NotEmpty(t, pe.Logs)
}

func TestActivateMissingRound(t *testing.T) {
	c, _ := setup(t)
	_, err := c.Activate(context.Background(), chaintest.Keypair(6), chaintest.Keypair(7).PublicKey())
	assert.ErrorIs(t, err, round.ErrAccountNotInitialized)
}

func TestWaitUntilActivatableTimeout(t *testing.T) {
	ctx := context.Background()
	c, ledger := setup(t)
	authority := chaintest.Keypair(8)

	_, err := c.Initialise(ctx, authority, ledger.Slot()+1000)
	require.NoError(t, err)
	ok, err := c.WaitUntilActivatable(ctx, authority.PublicKey(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoundsAreIndependent(t *testing.T) {
	ctx := context.Background()
	c, ledger := setup(t)
	a, b := chaintest.Keypair(9), chaintest.Keypair(10)

	_, err := c.Initialise(ctx, a, ledger.Slot()+1)
	require.NoError(t, err)
	_, err = c.Initialise(ctx, b, ledger.Slot()+50)
	require.NoError(t, err)

	ledger.AdvanceSlots(5)
	_, err = c.Activate(ctx, b, a.PublicKey())
	require.NoError(t, err)
	_, err = c.Activate(ctx, a, b.PublicKey())
	assert.ErrorIs(t, err, round.ErrInvalidRoundActivationSlot)
}

func TestInstructionData(t *testing.T) {
	c, _ := setup(t)
	authority := chaintest.Keypair(11).PublicKey()

	ix, err := c.InitialiseInstruction(authority, 0x0102030405060708)
	require.NoError(t, err)
	want := []byte{218, 162, 72, 121, 145, 162, 217, 167, 8, 7, 6, 5, 4, 3, 2, 1}
	assert.Equal(t, want, ix.Data)
	assert.Equal(t, c.Address(authority), ix.Accounts[0].Address)
	assert.True(t, ix.Accounts[1].IsSigner)
}

func roundFixture(activated, completed bool) []byte {
	var b []byte
	b = append(b, 87, 127, 165, 51, 73, 78, 116, 174)
	b = append(b, 10, 0, 0, 0, 0, 0, 0, 0)
	b = append(b, bytes.Repeat([]byte{0xaa}, 32)...)
	if activated {
		b = append(b, 1, 12, 0, 0, 0, 0, 0, 0, 0)
		b = append(b, 1)
		b = append(b, bytes.Repeat([]byte{0xbb}, 32)...)
	} else {
		b = append(b, 0, 0)
	}
	if completed {
		b = append(b, 1, 20, 0, 0, 0, 0, 0, 0, 0)
	} else {
		b = append(b, 0)
	}
	for len(b) < chaintest.RoundSize {
		b = append(b, 0)
	}
	return b
}

func TestDecodeGolden(t *testing.T) {
	acc, err := round.Decode(roundFixture(true, true))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), acc.StartSlot)
	assert.Equal(t, byte(0xaa), acc.Authority[0])
	require.NotNil(t, acc.ActivatedAt)
	assert.Equal(t, uint64(12), *acc.ActivatedAt)
	require.NotNil(t, acc.ActivatedBy)
	assert.Equal(t, byte(0xbb), acc.ActivatedBy[31])
	require.NotNil(t, acc.CompletedAt)
	assert.Equal(t, uint64(20), *acc.CompletedAt)
	assert.NoError(t, acc.Validate())

	pending, err := round.Decode(roundFixture(false, false))
	require.NoError(t, err)
	assert.Nil(t, pending.ActivatedAt)
	assert.Nil(t, pending.ActivatedBy)
	assert.Nil(t, pending.CompletedAt)
	assert.Equal(t, round.StatusPending, pending.Status())

	_, err = round.Decode(roundFixture(true, true)[:50])
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	u := func(v uint64) *uint64 { return &v }
	by := chain.Address{1}
	tests := []struct {
		name string
		acc  round.Account
		ok   bool
	}{
		{"pending", round.Account{StartSlot: 5}, true},
		{"active", round.Account{StartSlot: 5, ActivatedAt: u(5), ActivatedBy: &by}, true},
		{"complete", round.Account{StartSlot: 5, ActivatedAt: u(6), ActivatedBy: &by, CompletedAt: u(6)}, true},
		{"activated early", round.Account{StartSlot: 5, ActivatedAt: u(4), ActivatedBy: &by}, false},
		{"missing activator", round.Account{StartSlot: 5, ActivatedAt: u(6)}, false},
		{"completed unactivated", round.Account{StartSlot: 5, CompletedAt: u(6)}, false},
		{"completed before activation", round.Account{StartSlot: 5, ActivatedAt: u(9), ActivatedBy: &by, CompletedAt: u(7)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.acc.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, round.ErrInconsistentState)
			}
		})
	}
}
