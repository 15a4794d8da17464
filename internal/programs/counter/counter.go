// Package counter is the client for the counter program: one u64 per owner,
// created once and incremented by its owner.
package counter

import (
	"context"
	"fmt"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/idl"
	"github.com/R3E-Network/ledger_client/internal/layout"
	"github.com/R3E-Network/ledger_client/internal/programs"
)

const seedCounter = "counter"

var (
	// ErrAlreadyInitialized is returned when the owner's counter already exists.
	ErrAlreadyInitialized = chain.ErrAccountAlreadyInUse
	// ErrAccountNotInitialized is returned when the owner has no counter yet.
	ErrAccountNotInitialized = chain.ErrAccountNotInitialized
)

// Account is the stored counter.
type Account struct {
	Count uint64
}

func (a *Account) steps() []layout.Step {
	return []layout.Step{
		layout.Field("count", &a.Count, layout.U64),
	}
}

// Client talks to the counter program.
type Client struct {
	base programs.Base
}

// New creates a counter client.
func New(m *chain.Manager, reg *idl.Registry) (*Client, error) {
	base, err := programs.NewBase(m, reg, idl.Counter)
	if err != nil {
		return nil, err
	}
	return &Client{base: base}, nil
}

// ProgramID returns the counter program address.
func (c *Client) ProgramID() chain.Address { return c.base.ID }

// Address returns the counter account of owner.
func (c *Client) Address(owner chain.Address) chain.Address {
	return c.base.Address(seedCounter, owner)
}

// InitializeInstruction creates the counter of user at zero.
func (c *Client) InitializeInstruction(user chain.Address) (chain.Instruction, error) {
	return c.base.Instruction("initialize", nil,
		chain.Writable(user, true),
		chain.Writable(c.Address(user), false),
		chain.Readonly(chain.SystemProgramID, false),
	)
}

// IncrementInstruction adds one to the counter of user.
func (c *Client) IncrementInstruction(user chain.Address) (chain.Instruction, error) {
	return c.base.Instruction("increment", nil,
		chain.Writable(c.Address(user), false),
		chain.Writable(user, true),
	)
}

// Initialize creates the counter owned by user.
func (c *Client) Initialize(ctx context.Context, user chain.Signer) (*chain.TxResult, error) {
	ix, err := c.InitializeInstruction(user.PublicKey())
	if err != nil {
		return nil, err
	}
	return c.base.Execute(ctx, "initialize", user, nil, ix)
}

// Increment adds one to the counter owned by user.
func (c *Client) Increment(ctx context.Context, user chain.Signer) (*chain.TxResult, error) {
	ix, err := c.IncrementInstruction(user.PublicKey())
	if err != nil {
		return nil, err
	}
	return c.base.Execute(ctx, "increment", user, nil, ix)
}

// Get fetches the counter of owner.
func (c *Client) Get(ctx context.Context, owner chain.Address) (*Account, error) {
	var acc Account
	if err := c.base.Fetch(ctx, c.Address(owner), "Counter", acc.steps()...); err != nil {
		return nil, fmt.Errorf("get counter: %w", err)
	}
	return &acc, nil
}

// GetCount returns the current count of owner.
func (c *Client) GetCount(ctx context.Context, owner chain.Address) (uint64, error) {
	acc, err := c.Get(ctx, owner)
	if err != nil {
		return 0, err
	}
	return acc.Count, nil
}

// Decode parses raw counter account data including its header.
func Decode(data []byte) (*Account, error) {
	var acc Account
	if err := layout.DecodeAccount(data, acc.steps()...); err != nil {
		return nil, err
	}
	return &acc, nil
}
