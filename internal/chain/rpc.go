package chain

import (
	"context"
	"encoding/base64"
)

// LedgerRPC is the subset of the ledger JSON-RPC surface the client layer
// depends on. Client implements it over HTTP; tests use an in-process ledger.
type LedgerRPC interface {
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (*LatestBlockhash, error)
	// GetAccountInfo returns nil with no error when the account does not exist.
	GetAccountInfo(ctx context.Context, addr Address, commitment Commitment) (*AccountInfo, error)
	GetSlot(ctx context.Context, commitment Commitment) (uint64, error)
	SendTransaction(ctx context.Context, wire []byte, opts SendOptions) (Signature, error)
	GetSignatureStatuses(ctx context.Context, sigs ...Signature) ([]*SignatureStatus, error)
	RequestAirdrop(ctx context.Context, addr Address, lamports uint64, commitment Commitment) (Signature, error)
	GetBalance(ctx context.Context, addr Address, commitment Commitment) (uint64, error)
	GetVersion(ctx context.Context) (*Version, error)
}

var _ LedgerRPC = (*Client)(nil)

type commitmentParam struct {
	Commitment Commitment `json:"commitment,omitempty"`
}

// GetLatestBlockhash returns a recent blockhash for compiling messages.
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment Commitment) (*LatestBlockhash, error) {
	var out contextValue[LatestBlockhash]
	if err := c.callInto(ctx, &out, "getLatestBlockhash", commitmentParam{commitment}); err != nil {
		return nil, err
	}
	return &out.Value, nil
}

// GetAccountInfo fetches an account with base64 data.
func (c *Client) GetAccountInfo(ctx context.Context, addr Address, commitment Commitment) (*AccountInfo, error) {
	opts := struct {
		Encoding   string     `json:"encoding"`
		Commitment Commitment `json:"commitment,omitempty"`
	}{"base64", commitment}
	var out contextValue[*AccountInfo]
	if err := c.callInto(ctx, &out, "getAccountInfo", addr.String(), opts); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// GetSlot returns the current slot.
func (c *Client) GetSlot(ctx context.Context, commitment Commitment) (uint64, error) {
	var slot uint64
	err := c.callInto(ctx, &slot, "getSlot", commitmentParam{commitment})
	return slot, err
}

// SendTransaction submits a serialized, signed transaction.
func (c *Client) SendTransaction(ctx context.Context, wire []byte, opts SendOptions) (Signature, error) {
	opts.Encoding = "base64"
	var sig Signature
	err := c.callInto(ctx, &sig, "sendTransaction", base64.StdEncoding.EncodeToString(wire), opts)
	return sig, err
}

// GetSignatureStatuses returns one status per signature, nil for unknown ones.
func (c *Client) GetSignatureStatuses(ctx context.Context, sigs ...Signature) ([]*SignatureStatus, error) {
	keys := make([]string, len(sigs))
	for i, s := range sigs {
		keys[i] = s.String()
	}
	var out contextValue[[]*SignatureStatus]
	if err := c.callInto(ctx, &out, "getSignatureStatuses", keys, map[string]bool{"searchTransactionHistory": false}); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// RequestAirdrop asks the node to fund addr. Only test networks honour it.
func (c *Client) RequestAirdrop(ctx context.Context, addr Address, lamports uint64, commitment Commitment) (Signature, error) {
	var sig Signature
	err := c.callInto(ctx, &sig, "requestAirdrop", addr.String(), lamports, commitmentParam{commitment})
	return sig, err
}

// GetBalance returns the lamport balance of addr.
func (c *Client) GetBalance(ctx context.Context, addr Address, commitment Commitment) (uint64, error) {
	var out contextValue[uint64]
	if err := c.callInto(ctx, &out, "getBalance", addr.String(), commitmentParam{commitment}); err != nil {
		return 0, err
	}
	return out.Value, nil
}

// GetVersion returns the node software version.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.callInto(ctx, &v, "getVersion"); err != nil {
		return nil, err
	}
	return &v, nil
}
