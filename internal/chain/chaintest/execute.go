package chaintest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/idl"
	"github.com/R3E-Network/ledger_client/internal/layout"
)

// Framework error codes raised on behalf of every program.
const (
	codeAlreadyInUse          = 0
	codeInstructionMissing    = 100
	codeFallbackNotFound      = 101
	codeDidNotDeserialize     = 102
	codeConstraintMut         = 2000
	codeConstraintHasOne      = 2001
	codeConstraintSeeds       = 2006
	codeConstraintAddress     = 2012
	codeDiscriminatorNotFound = 3001
	codeDiscriminatorMismatch = 3002
	codeOwnedByWrongProgram   = 3007
	codeAccountNotSigner      = 3010
	codeAccountNotInitialized = 3012
)

// programError is a custom error code returned by an instruction.
type programError uint32

func (e programError) Error() string { return fmt.Sprintf("custom program error: %#x", uint32(e)) }

// builtinError is a runtime instruction error such as NotEnoughAccountKeys.
type builtinError string

func (e builtinError) Error() string { return string(e) }

type failure struct {
	index int
	err   error
}

func (f *failure) json() json.RawMessage {
	var detail interface{} = f.err.Error()
	if code, ok := f.err.(programError); ok {
		detail = map[string]uint32{"Custom": uint32(code)}
	}
	b, _ := json.Marshal(map[string]interface{}{"InstructionError": []interface{}{f.index, detail}})
	return b
}

// execution applies one transaction. Writes are staged and only reach the
// ledger on commit, so a failing instruction leaves no trace.
type execution struct {
	l       *Ledger
	msg     *chain.Message
	pending map[chain.Address]*chain.AccountInfo
	logs    []string
}

func newExecution(l *Ledger, msg *chain.Message) *execution {
	return &execution{l: l, msg: msg, pending: make(map[chain.Address]*chain.AccountInfo)}
}

func (x *execution) logf(format string, args ...interface{}) {
	x.logs = append(x.logs, fmt.Sprintf(format, args...))
}

func (x *execution) get(addr chain.Address) (*chain.AccountInfo, bool) {
	if a, ok := x.pending[addr]; ok {
		return a, true
	}
	a, ok := x.l.accounts[addr]
	return a, ok
}

func (x *execution) put(addr chain.Address, info *chain.AccountInfo) {
	x.pending[addr] = info
}

func (x *execution) commit() {
	for addr, info := range x.pending {
		x.l.accounts[addr] = info
	}
}

func (x *execution) execute() *failure {
	for i, ci := range x.msg.Instructions {
		programID := x.msg.AccountKeys[ci.ProgramIDIndex]
		x.logf("Program %s invoke [1]", programID)
		if err := x.instruction(programID, ci); err != nil {
			if code, ok := err.(programError); ok {
				x.logf("Program %s failed: custom program error: %#x", programID, uint32(code))
			} else {
				x.logf("Program %s failed: %s", programID, err)
			}
			return &failure{index: i, err: err}
		}
		x.logf("Program %s success", programID)
	}
	return nil
}

func (x *execution) instruction(programID chain.Address, ci chain.CompiledInstruction) error {
	if programID == chain.SystemProgramID {
		return builtinError("InvalidInstructionData")
	}
	if len(ci.Data) < layout.DiscriminatorSize {
		return programError(codeInstructionMissing)
	}
	var disc [8]byte
	copy(disc[:], ci.Data)
	program, ix, ok := x.l.registry.InstructionByDiscriminator(programID, disc)
	if program == "" {
		return builtinError("UnsupportedProgramId")
	}
	if !ok {
		return programError(codeFallbackNotFound)
	}
	if len(ci.Accounts) < len(ix.Accounts) {
		return builtinError("NotEnoughAccountKeys")
	}

	c := &ixContext{
		x:         x,
		program:   program,
		programID: programID,
		args:      layout.NewReader(ci.Data[layout.DiscriminatorSize:]),
	}
	for n, item := range ix.Accounts {
		idx := int(ci.Accounts[n])
		key := x.msg.AccountKeys[idx]
		signer := idx < int(x.msg.Header.NumRequiredSignatures)
		if item.Signer && !signer {
			return programError(codeAccountNotSigner)
		}
		if item.Writable && !x.msg.IsWritable(idx) {
			return programError(codeConstraintMut)
		}
		if item.Address != "" && key.String() != item.Address {
			return programError(codeConstraintAddress)
		}
		c.accounts = append(c.accounts, key)
	}

	handler, ok := handlers[string(program)+"."+normalize(ix.Name)]
	if !ok {
		return programError(codeFallbackNotFound)
	}
	if err := handler(c); err != nil {
		if code, ok := err.(programError); ok {
			if def, ok := x.l.registry.Error(program, uint32(code)); ok {
				x.logf("Program log: AnchorError occurred. Error Code: %s. Error Number: %d. Error Message: %s.", def.Name, def.Code, def.Msg)
			}
		}
		return err
	}
	return nil
}

func normalize(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// ixContext is the view one instruction has of the transaction.
type ixContext struct {
	x         *execution
	program   idl.Program
	programID chain.Address
	accounts  []chain.Address
	args      *layout.Reader
}

func (c *ixContext) slot() uint64 { return c.x.l.slot }

func (c *ixContext) log(format string, args ...interface{}) {
	c.x.logf("Program log: "+format, args...)
}

func (c *ixContext) discriminator(accountType string) [8]byte {
	disc, err := c.x.l.registry.AccountDiscriminator(c.program, accountType)
	if err != nil {
		panic(err)
	}
	return disc
}

// load returns the body of an existing program account of the given type.
func (c *ixContext) load(i int, accountType string) ([]byte, error) {
	info, ok := c.x.get(c.accounts[i])
	if !ok {
		return nil, programError(codeAccountNotInitialized)
	}
	if info.Owner != c.programID {
		return nil, programError(codeOwnedByWrongProgram)
	}
	disc, body, err := layout.SplitDiscriminator(info.Data)
	if err != nil {
		return nil, programError(codeDiscriminatorNotFound)
	}
	if disc != c.discriminator(accountType) {
		return nil, programError(codeDiscriminatorMismatch)
	}
	return body, nil
}

// checkSeeds verifies account i is the program address for the seeds.
func (c *ixContext) checkSeeds(i int, kind string, owner chain.Address, sub ...[]byte) error {
	want, _, err := chain.ProgramAddress(kind, owner, c.programID, sub...)
	if err != nil || want != c.accounts[i] {
		return programError(codeConstraintSeeds)
	}
	return nil
}

// create allocates account i as a program address of the given type.
func (c *ixContext) create(i int, accountType string, size int, kind string, owner chain.Address, sub ...[]byte) error {
	if err := c.checkSeeds(i, kind, owner, sub...); err != nil {
		return err
	}
	if _, exists := c.x.get(c.accounts[i]); exists {
		c.x.logf("Allocate: account Address { address: %s, base: None } already in use", c.accounts[i])
		return programError(codeAlreadyInUse)
	}
	data := make([]byte, size)
	disc := c.discriminator(accountType)
	copy(data, disc[:])
	c.x.put(c.accounts[i], &chain.AccountInfo{
		Lamports: rentExempt(size),
		Owner:    c.programID,
		Data:     data,
	})
	return nil
}

// store replaces the body of account i, keeping its header and allocation.
func (c *ixContext) store(i int, body []byte) error {
	info, ok := c.x.get(c.accounts[i])
	if !ok {
		return programError(codeAccountNotInitialized)
	}
	if layout.DiscriminatorSize+len(body) > len(info.Data) {
		return builtinError("AccountDataTooSmall")
	}
	cp := *info
	cp.Data = append([]byte(nil), info.Data...)
	copy(cp.Data[layout.DiscriminatorSize:], body)
	for j := layout.DiscriminatorSize + len(body); j < len(cp.Data); j++ {
		cp.Data[j] = 0
	}
	c.x.put(c.accounts[i], &cp)
	return nil
}

// rentExempt is the balance that keeps an account of size bytes alive.
func rentExempt(size int) uint64 {
	return uint64(128+size) * 6960
}
