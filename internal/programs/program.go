// Package programs holds the plumbing shared by the program clients: program
// address resolution, instruction assembly from descriptor discriminators and
// typed account fetches.
package programs

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/idl"
	"github.com/R3E-Network/ledger_client/internal/layout"
)

// ErrWrongOwner is returned when a fetched account belongs to another program.
var ErrWrongOwner = errors.New("account owned by another program")

// Base binds a program to a transaction manager and descriptor registry.
type Base struct {
	Manager  *chain.Manager
	Registry *idl.Registry
	Program  idl.Program
	ID       chain.Address
}

// NewBase resolves the program address from reg.
func NewBase(m *chain.Manager, reg *idl.Registry, p idl.Program) (Base, error) {
	if m == nil {
		return Base{}, errors.New("nil manager")
	}
	if reg == nil {
		return Base{}, errors.New("nil registry")
	}
	id, err := reg.ProgramID(p)
	if err != nil {
		return Base{}, err
	}
	return Base{Manager: m, Registry: reg, Program: p, ID: id}, nil
}

// Address derives a program-owned account address.
func (b Base) Address(kind string, owner chain.Address, subSeeds ...[]byte) chain.Address {
	return chain.DeriveProgramAddress(kind, owner, b.ID, subSeeds...)
}

// Instruction builds an instruction whose data is the discriminator of name
// followed by whatever args writes.
func (b Base) Instruction(name string, args func(w *layout.Writer), accounts ...chain.AccountMeta) (chain.Instruction, error) {
	disc, err := b.Registry.Discriminator(b.Program, name)
	if err != nil {
		return chain.Instruction{}, err
	}
	w := layout.NewInstructionData(disc)
	if args != nil {
		args(w)
	}
	return chain.NewInstruction(b.ID, w.Bytes(), accounts...), nil
}

// Execute lands instructions paid for by payer.
func (b Base) Execute(ctx context.Context, label string, payer chain.Signer, extra []chain.Signer, ixs ...chain.Instruction) (*chain.TxResult, error) {
	return b.Manager.Execute(ctx, chain.TxRequest{
		Label:        string(b.Program) + "." + label,
		FeePayer:     payer,
		Signers:      extra,
		Instructions: ixs,
	})
}

// Fetch loads the account at addr and decodes it as accountType. A missing
// account matches both chain.ErrAccountNotInitialized and chain.ErrAccountNotFound.
func (b Base) Fetch(ctx context.Context, addr chain.Address, accountType string, steps ...layout.Step) error {
	info, err := b.Manager.FetchAccount(ctx, addr)
	if err != nil {
		if errors.Is(err, chain.ErrAccountNotFound) {
			return fmt.Errorf("%w: %w", chain.ErrAccountNotInitialized, err)
		}
		return err
	}
	if info.Owner != b.ID {
		return fmt.Errorf("%w: %s is owned by %s", ErrWrongOwner, addr, info.Owner)
	}
	disc, err := b.Registry.AccountDiscriminator(b.Program, accountType)
	if err != nil {
		return err
	}
	if err := layout.DecodeAccountOf(info.Data, disc, steps...); err != nil {
		return fmt.Errorf("decode %s %s: %w", accountType, addr, err)
	}
	return nil
}
