package chain

// AccountMeta describes how an instruction touches an account.
type AccountMeta struct {
	Address    Address
	IsSigner   bool
	IsWritable bool
}

// Writable is a mutable account reference.
func Writable(addr Address, signer bool) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: signer, IsWritable: true}
}

// Readonly is a read-only account reference.
func Readonly(addr Address, signer bool) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: signer}
}

// Instruction is one program invocation. Data starts with the 8-byte
// instruction discriminator followed by the encoded arguments.
type Instruction struct {
	ProgramID Address
	Accounts  []AccountMeta
	Data      []byte
}

// NewInstruction builds an instruction.
func NewInstruction(program Address, data []byte, accounts ...AccountMeta) Instruction {
	return Instruction{ProgramID: program, Accounts: accounts, Data: data}
}
