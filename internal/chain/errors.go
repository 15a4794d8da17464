package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrAccountNotFound is returned when the ledger holds no account at an address.
	ErrAccountNotFound = errors.New("account not found")
	// ErrBlockhashExpired matches transaction errors that require rebuilding
	// the transaction against a fresh blockhash. Resending will not help.
	ErrBlockhashExpired = errors.New("blockhash expired")

	// ErrAccountAlreadyInUse is the system program refusing to create an
	// account that already exists. It surfaces as Custom(0) on the outer
	// instruction that attempted the creation.
	ErrAccountAlreadyInUse = NewProgramError("", 0, "AccountAlreadyInUse", "Account already in use")
	// ErrAccountNotInitialized is the framework error raised when an
	// instruction expects an account that was never created.
	ErrAccountNotInitialized = NewProgramError("", 3012, "AccountNotInitialized", "The program expected this account to be already initialized")
)

// rpcErrPreflightFailure is the JSON-RPC code for a simulation failure.
const rpcErrPreflightFailure = -32002

// frameworkErrors are raised by the program framework on behalf of any program.
var frameworkErrors = map[uint32]struct{ name, msg string }{
	0:    {"AccountAlreadyInUse", "Account already in use"},
	100:  {"InstructionMissing", "8 byte instruction identifier not provided"},
	101:  {"InstructionFallbackNotFound", "Fallback functions are not supported"},
	102:  {"InstructionDidNotDeserialize", "The program could not deserialize the given instruction"},
	2000: {"ConstraintMut", "A mut constraint was violated"},
	2002: {"ConstraintSigner", "A signer constraint was violated"},
	2006: {"ConstraintSeeds", "A seeds constraint was violated"},
	2012: {"ConstraintAddress", "An address constraint was violated"},
	3001: {"AccountDiscriminatorNotFound", "No discriminator was found on the account"},
	3002: {"AccountDiscriminatorMismatch", "Account discriminator did not match what was expected"},
	3003: {"AccountDidNotDeserialize", "Failed to deserialize the account"},
	3007: {"AccountOwnedByWrongProgram", "The given account is owned by a different program than expected"},
	3010: {"AccountNotSigner", "The given account did not sign"},
	3012: {"AccountNotInitialized", "The program expected this account to be already initialized"},
}

// TransportError wraps failures to reach the ledger or read its reply.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc %s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err was caused by the RPC transport, including
// error objects the node returned for a malformed request.
func IsTransport(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var re *RPCError
	return errors.As(err, &re)
}

// RPCError is a JSON-RPC error object returned by the ledger.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ProgramError is a program rejecting an instruction with a custom code.
//
// Two program errors match under errors.Is when their codes are equal and the
// target either names no program or names the same program.
type ProgramError struct {
	Program          Address
	ProgramName      string
	InstructionIndex int
	Code             uint32
	Name             string
	Message          string
	Logs             []string
}

// NewProgramError builds a matchable program error. An empty program name
// matches the code raised by any program.
func NewProgramError(program string, code uint32, name, msg string) *ProgramError {
	return &ProgramError{ProgramName: program, InstructionIndex: -1, Code: code, Name: name, Message: msg}
}

func (e *ProgramError) Error() string {
	var b strings.Builder
	if e.ProgramName != "" {
		b.WriteString(e.ProgramName)
	} else if !e.Program.IsZero() {
		b.WriteString(e.Program.String())
	} else {
		b.WriteString("program")
	}
	if e.InstructionIndex >= 0 {
		fmt.Fprintf(&b, " instruction %d", e.InstructionIndex)
	}
	fmt.Fprintf(&b, ": error %d", e.Code)
	if e.Name != "" {
		fmt.Fprintf(&b, " %s", e.Name)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Is matches on code and, when the target names one, on program.
func (e *ProgramError) Is(target error) bool {
	t, ok := target.(*ProgramError)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.ProgramName == "" || t.ProgramName == e.ProgramName
}

// TransactionError is a ledger-level failure that is not a program's custom
// error, such as an expired blockhash or a builtin instruction error.
type TransactionError struct {
	Kind             string
	InstructionIndex int
	Detail           string
	Raw              string
}

func (e *TransactionError) Error() string {
	if e.InstructionIndex >= 0 {
		return fmt.Sprintf("transaction failed: %s at instruction %d: %s", e.Kind, e.InstructionIndex, e.Detail)
	}
	if e.Detail != "" {
		return fmt.Sprintf("transaction failed: %s: %s", e.Kind, e.Detail)
	}
	return "transaction failed: " + e.Kind
}

// Is matches ErrBlockhashExpired for BlockhashNotFound failures.
func (e *TransactionError) Is(target error) bool {
	return target == ErrBlockhashExpired && e.Kind == "BlockhashNotFound"
}

// ErrorResolver names program error codes. Implementations return empty
// strings for unknown programs or codes.
type ErrorResolver interface {
	ResolveError(program Address, code uint32) (programName, name, msg string)
}

// decodeTransactionError turns a ledger transaction error payload into a
// typed error. msg supplies the program of the failing instruction and may be nil.
func decodeTransactionError(raw string, logs []string, msg *Message, resolver ErrorResolver) error {
	r := gjson.Parse(raw)
	switch {
	case r.Type == gjson.String:
		return &TransactionError{Kind: r.Str, InstructionIndex: -1, Raw: raw}
	case !r.IsObject():
		return &TransactionError{Kind: "Unknown", InstructionIndex: -1, Detail: raw, Raw: raw}
	}

	if ie := r.Get("InstructionError"); ie.Exists() && ie.IsArray() {
		idx := int(ie.Get("0").Int())
		detail := ie.Get("1")
		if custom := detail.Get("Custom"); custom.Exists() {
			pe := &ProgramError{InstructionIndex: idx, Code: uint32(custom.Uint()), Logs: logs}
			if msg != nil {
				pe.Program, _ = msg.ProgramOf(idx)
			}
			resolveProgramError(pe, resolver)
			return pe
		}
		kind := detail.String()
		if detail.IsObject() {
			kind = firstKey(detail)
		}
		return &TransactionError{Kind: "InstructionError", InstructionIndex: idx, Detail: kind, Raw: raw}
	}

	kind := firstKey(r)
	return &TransactionError{Kind: kind, InstructionIndex: -1, Detail: r.Get(gjson.Escape(kind)).Raw, Raw: raw}
}

func resolveProgramError(pe *ProgramError, resolver ErrorResolver) {
	if resolver != nil {
		pe.ProgramName, pe.Name, pe.Message = resolver.ResolveError(pe.Program, pe.Code)
	}
	if pe.Name == "" {
		if fe, ok := frameworkErrors[pe.Code]; ok {
			pe.Name, pe.Message = fe.name, fe.msg
		}
	}
}

func firstKey(obj gjson.Result) string {
	var key string
	obj.ForEach(func(k, _ gjson.Result) bool {
		key = k.String()
		return false
	})
	return key
}

// preflightFailure extracts the transaction error from a simulation failure.
func preflightFailure(err error, msg *Message, resolver ErrorResolver) error {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != rpcErrPreflightFailure || len(rpcErr.Data) == 0 {
		return err
	}
	data := gjson.ParseBytes(rpcErr.Data)
	txErr := data.Get("err")
	if !txErr.Exists() || txErr.Type == gjson.Null {
		return err
	}
	var logs []string
	for _, l := range data.Get("logs").Array() {
		logs = append(logs, l.String())
	}
	return decodeTransactionError(txErr.Raw, logs, msg, resolver)
}
