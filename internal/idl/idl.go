// Package idl loads program interface descriptors: the instruction and account
// discriminators and the error tables of the programs this client talks to.
//
// The program set is closed. Descriptors are embedded at build time and may be
// replaced file by file from a directory at startup.
package idl

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/R3E-Network/ledger_client/internal/chain"
)

//go:embed descriptors/*.json
var embedded embed.FS

// Program names a supported program.
type Program string

const (
	Counter  Program = "counter"
	Round    Program = "round"
	Username Program = "username"
)

// Programs lists every supported program.
var Programs = []Program{Counter, Round, Username}

var (
	ErrUnknownProgram     = errors.New("unknown program")
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrUnknownAccount     = errors.New("unknown account type")
	ErrInvalidDescriptor  = errors.New("invalid descriptor")
)

// ConfigError reports a lookup or load failure against the descriptor set.
type ConfigError struct {
	Program Program
	Item    string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("idl %s: %v", e.Program, e.Err)
	}
	return fmt.Sprintf("idl %s %q: %v", e.Program, e.Item, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Descriptor is the subset of an Anchor IDL the client uses.
type Descriptor struct {
	Address  string `json:"address"`
	Metadata struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Spec    string `json:"spec"`
	} `json:"metadata"`
	Instructions []Instruction     `json:"instructions"`
	Accounts     []Account         `json:"accounts"`
	Errors       []ErrorDef        `json:"errors"`
	Types        []json.RawMessage `json:"types,omitempty"`
}

// Instruction describes one program entrypoint.
type Instruction struct {
	Name          string          `json:"name"`
	Discriminator [8]uint8        `json:"discriminator"`
	Accounts      []AccountItem   `json:"accounts"`
	Args          json.RawMessage `json:"args,omitempty"`
}

// AccountItem is one account slot of an instruction.
type AccountItem struct {
	Name     string `json:"name"`
	Writable bool   `json:"writable,omitempty"`
	Signer   bool   `json:"signer,omitempty"`
	Address  string `json:"address,omitempty"`
}

// Account is a program-owned account type.
type Account struct {
	Name          string   `json:"name"`
	Discriminator [8]uint8 `json:"discriminator"`
}

// ErrorDef is one custom program error.
type ErrorDef struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

type entry struct {
	program      Program
	address      chain.Address
	desc         *Descriptor
	instructions map[string]*Instruction
	accounts     map[string]Account
	errors       map[uint32]ErrorDef
}

// Registry is an immutable index over the loaded descriptors. It is safe for
// concurrent use.
type Registry struct {
	programs  map[Program]*entry
	byAddress map[chain.Address]*entry
}

// Options control Load.
type Options struct {
	// Dir, when set, is searched for <program>.json files that replace the
	// embedded descriptors.
	Dir string
	// ProgramIDs override descriptor addresses.
	ProgramIDs map[Program]chain.Address
}

// Load builds a registry from the embedded descriptors and any overrides.
func Load(opts Options) (*Registry, error) {
	r := &Registry{
		programs:  make(map[Program]*entry, len(Programs)),
		byAddress: make(map[chain.Address]*entry, len(Programs)),
	}
	for _, p := range Programs {
		raw, err := readDescriptor(p, opts.Dir)
		if err != nil {
			return nil, &ConfigError{Program: p, Err: err}
		}
		e, err := index(p, raw)
		if err != nil {
			return nil, err
		}
		if id, ok := opts.ProgramIDs[p]; ok && !id.IsZero() {
			e.address = id
		}
		if other, dup := r.byAddress[e.address]; dup {
			return nil, &ConfigError{Program: p, Err: fmt.Errorf("%w: address %s already used by %s", ErrInvalidDescriptor, e.address, other.program)}
		}
		r.programs[p] = e
		r.byAddress[e.address] = e
	}
	return r, nil
}

// MustLoad is Load for the embedded descriptors, which are known to be valid.
func MustLoad() *Registry {
	r, err := Load(Options{})
	if err != nil {
		panic(err)
	}
	return r
}

func readDescriptor(p Program, dir string) ([]byte, error) {
	name := string(p) + ".json"
	if dir != "" {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return embedded.ReadFile("descriptors/" + name)
}

func index(p Program, raw []byte) (*entry, error) {
	invalid := func(format string, args ...interface{}) error {
		return &ConfigError{Program: p, Err: fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidDescriptor}, args...)...)}
	}

	var desc Descriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, invalid("%v", err)
	}
	if desc.Metadata.Name != string(p) {
		return nil, invalid("metadata name %q", desc.Metadata.Name)
	}
	addr, err := chain.ParseAddress(desc.Address)
	if err != nil {
		return nil, invalid("%v", err)
	}

	e := &entry{
		program:      p,
		address:      addr,
		desc:         &desc,
		instructions: make(map[string]*Instruction, len(desc.Instructions)),
		accounts:     make(map[string]Account, len(desc.Accounts)),
		errors:       make(map[uint32]ErrorDef, len(desc.Errors)),
	}
	seen := make(map[[8]uint8]string)
	for i := range desc.Instructions {
		ix := &desc.Instructions[i]
		if prev, dup := seen[ix.Discriminator]; dup {
			return nil, invalid("instructions %s and %s share a discriminator", prev, ix.Name)
		}
		seen[ix.Discriminator] = ix.Name
		e.instructions[normalize(ix.Name)] = ix
	}
	for _, acc := range desc.Accounts {
		e.accounts[normalize(acc.Name)] = acc
	}
	for _, def := range desc.Errors {
		e.errors[def.Code] = def
	}
	return e, nil
}

// normalize folds snake_case, camelCase and PascalCase spellings together.
func normalize(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

func (r *Registry) entry(p Program) (*entry, error) {
	e, ok := r.programs[p]
	if !ok {
		return nil, &ConfigError{Program: p, Err: ErrUnknownProgram}
	}
	return e, nil
}

// ProgramID returns the on-ledger address of p.
func (r *Registry) ProgramID(p Program) (chain.Address, error) {
	e, err := r.entry(p)
	if err != nil {
		return chain.Address{}, err
	}
	return e.address, nil
}

// Lookup returns the program deployed at addr.
func (r *Registry) Lookup(addr chain.Address) (Program, bool) {
	e, ok := r.byAddress[addr]
	if !ok {
		return "", false
	}
	return e.program, true
}

// Descriptor returns the loaded descriptor of p.
func (r *Registry) Descriptor(p Program) (*Descriptor, error) {
	e, err := r.entry(p)
	if err != nil {
		return nil, err
	}
	return e.desc, nil
}

// Instruction returns the named instruction of p.
func (r *Registry) Instruction(p Program, name string) (*Instruction, error) {
	e, err := r.entry(p)
	if err != nil {
		return nil, err
	}
	ix, ok := e.instructions[normalize(name)]
	if !ok {
		return nil, &ConfigError{Program: p, Item: name, Err: ErrUnknownInstruction}
	}
	return ix, nil
}

// Discriminator returns the 8-byte prefix of instruction data for p.name.
func (r *Registry) Discriminator(p Program, instruction string) ([8]byte, error) {
	ix, err := r.Instruction(p, instruction)
	if err != nil {
		return [8]byte{}, err
	}
	return ix.Discriminator, nil
}

// AccountDiscriminator returns the 8-byte header of accounts of the named type.
func (r *Registry) AccountDiscriminator(p Program, account string) ([8]byte, error) {
	e, err := r.entry(p)
	if err != nil {
		return [8]byte{}, err
	}
	acc, ok := e.accounts[normalize(account)]
	if !ok {
		return [8]byte{}, &ConfigError{Program: p, Item: account, Err: ErrUnknownAccount}
	}
	return acc.Discriminator, nil
}

// InstructionByDiscriminator finds the instruction of the program at addr
// whose data starts with disc.
func (r *Registry) InstructionByDiscriminator(addr chain.Address, disc [8]byte) (Program, *Instruction, bool) {
	e, ok := r.byAddress[addr]
	if !ok {
		return "", nil, false
	}
	for _, ix := range e.instructions {
		if ix.Discriminator == disc {
			return e.program, ix, true
		}
	}
	return e.program, nil, false
}

// Error returns the custom error definition for code in p.
func (r *Registry) Error(p Program, code uint32) (ErrorDef, bool) {
	e, ok := r.programs[p]
	if !ok {
		return ErrorDef{}, false
	}
	def, ok := e.errors[code]
	return def, ok
}

// ResolveError names a program error code raised by the program at addr.
func (r *Registry) ResolveError(addr chain.Address, code uint32) (programName, name, msg string) {
	e, ok := r.byAddress[addr]
	if !ok {
		return "", "", ""
	}
	def, ok := e.errors[code]
	if !ok {
		return string(e.program), "", ""
	}
	return string(e.program), def.Name, def.Msg
}

// ProgramError builds a matchable error for code of p from its table.
func (r *Registry) ProgramError(p Program, code uint32) *chain.ProgramError {
	def, _ := r.Error(p, code)
	return chain.NewProgramError(string(p), code, def.Name, def.Msg)
}

// Instructions lists the instruction names of p in sorted order.
func (r *Registry) Instructions(p Program) []string {
	e, ok := r.programs[p]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(e.instructions))
	for _, ix := range e.instructions {
		names = append(names, ix.Name)
	}
	sort.Strings(names)
	return names
}

var _ chain.ErrorResolver = (*Registry)(nil)
