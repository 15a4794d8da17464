package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

type stubResolver map[uint32][3]string

func (s stubResolver) ResolveError(_ Address, code uint32) (string, string, string) {
	e := s[code]
	return e[0], e[1], e[2]
}

func TestDecodeTransactionError_Custom(t *testing.T) {
	payer, program := addr(1), addr(2)
	msg, _ := NewMessage(payer, Hash{}, NewInstruction(program, nil, Writable(payer, true)))
	resolver := stubResolver{6001: {"round", "RoundAlreadyActive", "The round is already active"}}

	err := decodeTransactionError(`{"InstructionError":[0,{"Custom":6001}]}`, []string{"log"}, msg, resolver)

	var pe *ProgramError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %T, want *ProgramError", err)
	}
	if pe.Program != program || pe.Code != 6001 || pe.Name != "RoundAlreadyActive" || pe.InstructionIndex != 0 {
		t.Errorf("program error = %+v", pe)
	}
	if !errors.Is(err, NewProgramError("round", 6001, "", "")) {
		t.Error("does not match same program and code")
	}
	if errors.Is(err, NewProgramError("username", 6001, "", "")) {
		t.Error("matches a different program with the same code")
	}
	if !errors.Is(fmt.Errorf("wrapped: %w", err), NewProgramError("", 6001, "", "")) {
		t.Error("wildcard program does not match through wrapping")
	}
}

func TestDecodeTransactionError_Framework(t *testing.T) {
	err := decodeTransactionError(`{"InstructionError":[1,{"Custom":3012}]}`, nil, nil, stubResolver{})
	if !errors.Is(err, ErrAccountNotInitialized) {
		t.Errorf("error = %v, want ErrAccountNotInitialized", err)
	}
	var pe *ProgramError
	if errors.As(err, &pe) && pe.Name != "AccountNotInitialized" {
		t.Errorf("name = %q, want framework name", pe.Name)
	}

	err = decodeTransactionError(`{"InstructionError":[0,{"Custom":0}]}`, nil, nil, nil)
	if !errors.Is(err, ErrAccountAlreadyInUse) {
		t.Errorf("error = %v, want ErrAccountAlreadyInUse", err)
	}
}

func TestDecodeTransactionError_NonCustom(t *testing.T) {
	tests := []struct {
		raw      string
		kind     string
		index    int
		detail   string
		blockErr bool
	}{
		{`"BlockhashNotFound"`, "BlockhashNotFound", -1, "", true},
		{`"AccountNotFound"`, "AccountNotFound", -1, "", false},
		{`{"InstructionError":[2,"InvalidAccountData"]}`, "InstructionError", 2, "InvalidAccountData", false},
		{`{"InstructionError":[0,{"BorshIoError":"x"}]}`, "InstructionError", 0, "BorshIoError", false},
		{`{"InsufficientFundsForRent":{"account_index":1}}`, "InsufficientFundsForRent", -1, `{"account_index":1}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			err := decodeTransactionError(tt.raw, nil, nil, nil)
			var te *TransactionError
			if !errors.As(err, &te) {
				t.Fatalf("error = %T, want *TransactionError", err)
			}
			if te.Kind != tt.kind || te.InstructionIndex != tt.index || te.Detail != tt.detail {
				t.Errorf("got %+v", te)
			}
			if got := errors.Is(err, ErrBlockhashExpired); got != tt.blockErr {
				t.Errorf("Is(ErrBlockhashExpired) = %v, want %v", got, tt.blockErr)
			}
		})
	}
}

func TestPreflightFailure(t *testing.T) {
	data, _ := json.Marshal(map[string]interface{}{
		"err":  map[string]interface{}{"InstructionError": []interface{}{0, map[string]int{"Custom": 6003}}},
		"logs": []string{"Program log: AnchorError"},
	})
	err := preflightFailure(&RPCError{Code: rpcErrPreflightFailure, Message: "simulation failed", Data: data}, nil, nil)
	var pe *ProgramError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %T, want *ProgramError", err)
	}
	if pe.Code != 6003 || len(pe.Logs) != 1 {
		t.Errorf("program error = %+v", pe)
	}

	other := &RPCError{Code: -32602, Message: "invalid params"}
	if got := preflightFailure(other, nil, nil); got != other {
		t.Errorf("non-preflight error = %v, want unchanged", got)
	}
}

func TestIsTransport(t *testing.T) {
	err := fmt.Errorf("outer: %w", &TransportError{Method: "getSlot", Err: errors.New("refused")})
	if !IsTransport(err) {
		t.Error("IsTransport() = false for wrapped transport error")
	}
	if !IsTransport(fmt.Errorf("send: %w", &RPCError{Code: -32602})) {
		t.Error("IsTransport() = false for RPC error")
	}
	if IsTransport(NewProgramError("round", 6001, "", "")) {
		t.Error("IsTransport() = true for program error")
	}
	if IsTransport(&TransactionError{Kind: "BlockhashNotFound"}) {
		t.Error("IsTransport() = true for transaction error")
	}
}
