package chain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Commitment is the ledger's confirmation level for reads and status checks.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Reached reports whether a status at level c satisfies the wanted level.
func (c Commitment) Reached(want Commitment) bool {
	if want.rank() == 0 {
		want = CommitmentConfirmed
	}
	return c.rank() >= want.rank()
}

// ParseCommitment validates a commitment name.
func ParseCommitment(s string) (Commitment, error) {
	c := Commitment(s)
	if c.rank() == 0 {
		return "", fmt.Errorf("unknown commitment %q", s)
	}
	return c, nil
}

// AccountInfo is an account as stored on the ledger.
type AccountInfo struct {
	Lamports   uint64
	Owner      Address
	Executable bool
	RentEpoch  uint64
	Data       []byte
}

// accountInfoJSON is the getAccountInfo wire shape with base64 data.
type accountInfoJSON struct {
	Lamports   uint64    `json:"lamports"`
	Owner      Address   `json:"owner"`
	Executable bool      `json:"executable"`
	RentEpoch  uint64    `json:"rentEpoch"`
	Data       [2]string `json:"data"`
	Space      uint64    `json:"space"`
}

func (a *AccountInfo) toJSON() accountInfoJSON {
	return accountInfoJSON{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
		Data:       [2]string{base64.StdEncoding.EncodeToString(a.Data), "base64"},
		Space:      uint64(len(a.Data)),
	}
}

// MarshalJSON renders the getAccountInfo wire shape.
func (a AccountInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.toJSON())
}

// UnmarshalJSON parses the getAccountInfo wire shape.
func (a *AccountInfo) UnmarshalJSON(b []byte) error {
	var raw accountInfoJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Data[1] != "" && raw.Data[1] != "base64" {
		return fmt.Errorf("unsupported account data encoding %q", raw.Data[1])
	}
	data, err := base64.StdEncoding.DecodeString(raw.Data[0])
	if err != nil {
		return fmt.Errorf("decode account data: %w", err)
	}
	*a = AccountInfo{
		Lamports:   raw.Lamports,
		Owner:      raw.Owner,
		Executable: raw.Executable,
		RentEpoch:  raw.RentEpoch,
		Data:       data,
	}
	return nil
}

// LatestBlockhash is the result of getLatestBlockhash.
type LatestBlockhash struct {
	Blockhash            Hash   `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SignatureStatus is one entry of getSignatureStatuses. Err holds the raw
// transaction error and is empty or "null" on success.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus Commitment      `json:"confirmationStatus"`
}

// Failed reports whether the transaction landed with an error.
func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// SendOptions control sendTransaction.
type SendOptions struct {
	SkipPreflight       bool       `json:"skipPreflight"`
	PreflightCommitment Commitment `json:"preflightCommitment,omitempty"`
	Encoding            string     `json:"encoding"`
}

// Version is the result of getVersion.
type Version struct {
	Core       string `json:"solana-core"`
	FeatureSet uint32 `json:"feature-set"`
}

// RPCRequest is a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      uint64          `json:"id"`
}

// RPCResponse is a JSON-RPC response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// contextValue is the {context, value} envelope used by several methods.
type contextValue[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}
