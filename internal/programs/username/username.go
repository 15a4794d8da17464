// Package username is the client for the username program: one user account
// per authority holding the current name, a change counter and the last few
// names, plus one immutable audit record per change.
package username

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/idl"
	"github.com/R3E-Network/ledger_client/internal/layout"
	"github.com/R3E-Network/ledger_client/internal/programs"
)

const (
	seedUserAccount    = "user_account"
	seedUsernameRecord = "username_record"

	MinLength  = 2
	MaxLength  = 32
	MaxHistory = 3
)

// Program errors.
var (
	ErrUsernameTooLong           = chain.NewProgramError("username", 6000, "UsernameTooLong", "Username is too long (maximum length is 32 characters)")
	ErrUsernameTooShort          = chain.NewProgramError("username", 6001, "UsernameTooShort", "Username is too short (minimum length is 2 characters)")
	ErrUsernameInvalidCharacters = chain.NewProgramError("username", 6002, "UsernameInvalidCharacters", "Username contains invalid characters (only ascii alphanumeric, underscores, and hyphens are allowed)")
	ErrUsernameAlreadyAssigned   = chain.NewProgramError("username", 6003, "UsernameAlreadyAssigned", "Username is already assigned")

	ErrAlreadyInitialized    = chain.ErrAccountAlreadyInUse
	ErrAccountNotInitialized = chain.ErrAccountNotInitialized
)

// Normalize trims surrounding whitespace the same way the program does.
func Normalize(name string) string {
	return strings.TrimSpace(name)
}

// Validate applies the program's naming rules to name after normalisation.
// The program remains the authority; this only gives early feedback.
func Validate(name string) error {
	name = Normalize(name)
	switch {
	case len(name) > MaxLength:
		return ErrUsernameTooLong
	case len(name) < MinLength:
		return ErrUsernameTooShort
	}
	for i := 0; i < len(name); i++ {
		if !allowed(name[i]) {
			return fmt.Errorf("%w: %q at offset %d", ErrUsernameInvalidCharacters, name[i], i)
		}
	}
	return nil
}

func allowed(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return b == '_' || b == '-'
}

// Account is the user account of an authority.
type Account struct {
	Authority     chain.Address
	Username      string
	ChangeCount   uint64
	RecentHistory []string
}

func (a *Account) steps() []layout.Step {
	return []layout.Step{
		layout.Field("authority", &a.Authority, layout.Address),
		layout.Field("username", &a.Username, layout.String),
		layout.Field("change_count", &a.ChangeCount, layout.U64),
		layout.Field("username_recent_history", &a.RecentHistory, layout.Vec(layout.String)),
	}
}

// Record is the audit entry written by the update with ChangeIndex.
type Record struct {
	Authority   chain.Address
	OldUsername string
	ChangeIndex uint64
}

func (r *Record) steps() []layout.Step {
	return []layout.Step{
		layout.Field("authority", &r.Authority, layout.Address),
		layout.Field("old_username", &r.OldUsername, layout.String),
		layout.Field("change_index", &r.ChangeIndex, layout.U64),
	}
}

// Client talks to the username program.
type Client struct {
	base programs.Base
}

// New creates a username client.
func New(m *chain.Manager, reg *idl.Registry) (*Client, error) {
	base, err := programs.NewBase(m, reg, idl.Username)
	if err != nil {
		return nil, err
	}
	return &Client{base: base}, nil
}

// ProgramID returns the username program address.
func (c *Client) ProgramID() chain.Address { return c.base.ID }

// Address returns the user account of authority.
func (c *Client) Address(authority chain.Address) chain.Address {
	return c.base.Address(seedUserAccount, authority)
}

// RecordAddress returns the audit record written by change number index.
func (c *Client) RecordAddress(authority chain.Address, index uint64) chain.Address {
	return c.base.Address(seedUsernameRecord, authority, layout.LE64(index))
}

// InitializeInstruction assigns the first name of authority.
func (c *Client) InitializeInstruction(authority chain.Address, name string) (chain.Instruction, error) {
	return c.base.Instruction("initialize_username",
		func(w *layout.Writer) { w.String(name) },
		chain.Writable(authority, true),
		chain.Writable(c.Address(authority), false),
		chain.Readonly(chain.SystemProgramID, false),
	)
}

// UpdateInstruction renames authority. changeCount must be the account's
// current change count; it selects the audit record the update creates.
func (c *Client) UpdateInstruction(authority chain.Address, name string, changeCount uint64) (chain.Instruction, error) {
	return c.base.Instruction("update_username",
		func(w *layout.Writer) { w.String(name) },
		chain.Writable(authority, true),
		chain.Writable(c.Address(authority), false),
		chain.Writable(c.RecordAddress(authority, changeCount), false),
		chain.Readonly(chain.SystemProgramID, false),
	)
}

// Initialize creates the user account of authority with name.
func (c *Client) Initialize(ctx context.Context, authority chain.Signer, name string) (*chain.TxResult, error) {
	ix, err := c.InitializeInstruction(authority.PublicKey(), name)
	if err != nil {
		return nil, err
	}
	return c.base.Execute(ctx, "initialize_username", authority, nil, ix)
}

// Update renames authority. The current change count is read first to derive
// the record address; a concurrent rename makes this transaction fail with a
// seeds violation rather than overwrite a record.
func (c *Client) Update(ctx context.Context, authority chain.Signer, name string) (*chain.TxResult, error) {
	acc, err := c.Get(ctx, authority.PublicKey())
	if err != nil {
		return nil, err
	}
	ix, err := c.UpdateInstruction(authority.PublicKey(), name, acc.ChangeCount)
	if err != nil {
		return nil, err
	}
	return c.base.Execute(ctx, "update_username", authority, nil, ix)
}

// Get fetches the user account of authority.
func (c *Client) Get(ctx context.Context, authority chain.Address) (*Account, error) {
	var acc Account
	if err := c.base.Fetch(ctx, c.Address(authority), "UserAccount", acc.steps()...); err != nil {
		return nil, fmt.Errorf("get user account: %w", err)
	}
	return &acc, nil
}

// GetRecord fetches the audit record for change number index.
func (c *Client) GetRecord(ctx context.Context, authority chain.Address, index uint64) (*Record, error) {
	var rec Record
	if err := c.base.Fetch(ctx, c.RecordAddress(authority, index), "UsernameRecord", rec.steps()...); err != nil {
		return nil, fmt.Errorf("get username record %d: %w", index, err)
	}
	return &rec, nil
}

// History returns every audit record of authority, oldest first.
func (c *Client) History(ctx context.Context, authority chain.Address) ([]Record, error) {
	acc, err := c.Get(ctx, authority)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, acc.ChangeCount)
	for i := uint64(0); i < acc.ChangeCount; i++ {
		rec, err := c.GetRecord(ctx, authority, i)
		if err != nil {
			return nil, err
		}
		if rec.ChangeIndex != i || rec.Authority != authority {
			return nil, fmt.Errorf("username record %d: %w", i, errInconsistentRecord)
		}
		out = append(out, *rec)
	}
	return out, nil
}

var errInconsistentRecord = errors.New("record does not match its address")

// DecodeAccount parses raw user account data including its header.
func DecodeAccount(data []byte) (*Account, error) {
	var acc Account
	if err := layout.DecodeAccount(data, acc.steps()...); err != nil {
		return nil, err
	}
	return &acc, nil
}

// DecodeRecord parses raw username record data including its header.
func DecodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := layout.DecodeAccount(data, rec.steps()...); err != nil {
		return nil, err
	}
	return &rec, nil
}
