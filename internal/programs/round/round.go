// Package round is the client for the round program. A round is created with a
// future start slot, activated by anyone once that slot is reached and
// completed by its authority. Each transition happens at most once.
package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/idl"
	"github.com/R3E-Network/ledger_client/internal/layout"
	"github.com/R3E-Network/ledger_client/internal/programs"
)

const seedRound = "round"

// Program errors.
var (
	ErrInvalidStartSlot           = chain.NewProgramError("round", 6000, "InvalidStartSlot", "The start slot must be greater than the current slot")
	ErrRoundAlreadyActive         = chain.NewProgramError("round", 6001, "RoundAlreadyActive", "The round is already active")
	ErrRoundNotYetActive          = chain.NewProgramError("round", 6002, "RoundNotYetActive", "The round has not yet been activated")
	ErrRoundAlreadyComplete       = chain.NewProgramError("round", 6003, "RoundAlreadyComplete", "The round is already complete")
	ErrInvalidRoundActivationSlot = chain.NewProgramError("round", 6004, "InvalidRoundActivationSlot", "The current slot must be greater than or equal to the start slot")

	ErrAlreadyInitialized    = chain.ErrAccountAlreadyInUse
	ErrAccountNotInitialized = chain.ErrAccountNotInitialized

	// ErrInconsistentState is returned by Validate for records no valid
	// sequence of transitions could produce.
	ErrInconsistentState = errors.New("inconsistent round state")
)

// Retryable reports whether err may clear by waiting: only activation before
// the start slot does. Every other rejection is final for the round's state.
func Retryable(err error) bool {
	return errors.Is(err, ErrInvalidRoundActivationSlot)
}

// Status is the position of a round in its lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
)

// Account is the stored round.
type Account struct {
	StartSlot   uint64
	Authority   chain.Address
	ActivatedAt *uint64
	ActivatedBy *chain.Address
	CompletedAt *uint64
}

func (a *Account) steps() []layout.Step {
	return []layout.Step{
		layout.Field("start_slot", &a.StartSlot, layout.U64),
		layout.Field("authority", &a.Authority, layout.Address),
		layout.Field("activated_at", &a.ActivatedAt, layout.Option(layout.U64)),
		layout.Field("activated_by", &a.ActivatedBy, layout.Option(layout.Address)),
		layout.Field("completed_at", &a.CompletedAt, layout.Option(layout.U64)),
	}
}

// Status derives the lifecycle position from the optional fields.
func (a *Account) Status() Status {
	switch {
	case a.CompletedAt != nil:
		return StatusComplete
	case a.ActivatedAt != nil:
		return StatusActive
	default:
		return StatusPending
	}
}

// Validate checks the invariants the program maintains.
func (a *Account) Validate() error {
	if (a.ActivatedAt == nil) != (a.ActivatedBy == nil) {
		return fmt.Errorf("%w: activated_at and activated_by disagree", ErrInconsistentState)
	}
	if a.ActivatedAt != nil && *a.ActivatedAt < a.StartSlot {
		return fmt.Errorf("%w: activated at %d before start slot %d", ErrInconsistentState, *a.ActivatedAt, a.StartSlot)
	}
	if a.CompletedAt != nil {
		if a.ActivatedAt == nil {
			return fmt.Errorf("%w: completed but never activated", ErrInconsistentState)
		}
		if *a.CompletedAt < *a.ActivatedAt {
			return fmt.Errorf("%w: completed at %d before activation at %d", ErrInconsistentState, *a.CompletedAt, *a.ActivatedAt)
		}
	}
	return nil
}

// Client talks to the round program.
type Client struct {
	base programs.Base
}

// New creates a round client.
func New(m *chain.Manager, reg *idl.Registry) (*Client, error) {
	base, err := programs.NewBase(m, reg, idl.Round)
	if err != nil {
		return nil, err
	}
	return &Client{base: base}, nil
}

// ProgramID returns the round program address.
func (c *Client) ProgramID() chain.Address { return c.base.ID }

// Address returns the round account of authority.
func (c *Client) Address(authority chain.Address) chain.Address {
	return c.base.Address(seedRound, authority)
}

// InitialiseInstruction creates the round of authority starting at startSlot.
func (c *Client) InitialiseInstruction(authority chain.Address, startSlot uint64) (chain.Instruction, error) {
	return c.base.Instruction("initialise_round",
		func(w *layout.Writer) { w.U64(startSlot) },
		chain.Writable(c.Address(authority), false),
		chain.Writable(authority, true),
		chain.Readonly(chain.SystemProgramID, false),
	)
}

// ActivateInstruction activates the round of authority on behalf of payer.
func (c *Client) ActivateInstruction(payer, authority chain.Address) (chain.Instruction, error) {
	return c.base.Instruction("activate_round", nil,
		chain.Writable(c.Address(authority), false),
		chain.Writable(payer, true),
	)
}

// CompleteInstruction completes the round of authority.
func (c *Client) CompleteInstruction(authority chain.Address) (chain.Instruction, error) {
	return c.base.Instruction("complete_round", nil,
		chain.Writable(c.Address(authority), false),
		chain.Writable(authority, true),
	)
}

// Initialise creates the round of authority. startSlot must be in the future.
func (c *Client) Initialise(ctx context.Context, authority chain.Signer, startSlot uint64) (*chain.TxResult, error) {
	ix, err := c.InitialiseInstruction(authority.PublicKey(), startSlot)
	if err != nil {
		return nil, err
	}
	return c.base.Execute(ctx, "initialise_round", authority, nil, ix)
}

// Activate activates the round of authority. Any payer may activate.
func (c *Client) Activate(ctx context.Context, payer chain.Signer, authority chain.Address) (*chain.TxResult, error) {
	ix, err := c.ActivateInstruction(payer.PublicKey(), authority)
	if err != nil {
		return nil, err
	}
	return c.base.Execute(ctx, "activate_round", payer, nil, ix)
}

// Complete completes the round owned by authority.
func (c *Client) Complete(ctx context.Context, authority chain.Signer) (*chain.TxResult, error) {
	ix, err := c.CompleteInstruction(authority.PublicKey())
	if err != nil {
		return nil, err
	}
	return c.base.Execute(ctx, "complete_round", authority, nil, ix)
}

// Get fetches and validates the round of authority.
func (c *Client) Get(ctx context.Context, authority chain.Address) (*Account, error) {
	var acc Account
	if err := c.base.Fetch(ctx, c.Address(authority), "Round", acc.steps()...); err != nil {
		return nil, fmt.Errorf("get round: %w", err)
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}
	return &acc, nil
}

// WaitUntilActivatable waits until the ledger reaches the round's start slot.
// It returns false with no error when timeout elapses first.
func (c *Client) WaitUntilActivatable(ctx context.Context, authority chain.Address, timeout time.Duration) (bool, error) {
	acc, err := c.Get(ctx, authority)
	if err != nil {
		return false, err
	}
	return c.base.Manager.WaitForSlotHeight(ctx, acc.StartSlot, timeout)
}

// Decode parses raw round account data including its header.
func Decode(data []byte) (*Account, error) {
	var acc Account
	if err := layout.DecodeAccount(data, acc.steps()...); err != nil {
		return nil, err
	}
	return &acc, nil
}
