// Package chaintest provides an in-process ledger that executes the counter,
// round and username programs, for tests of the client layer.
//
// The ledger parses real wire transactions, verifies signatures and
// blockhashes, runs instructions atomically against its account map and
// answers the JSON-RPC surface either directly (chain.LedgerRPC) or over HTTP
// via NewServer.
package chaintest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/idl"
)

const defaultBlockhashTTL = 150

// Option configures a Ledger.
type Option func(*Ledger)

// WithSlot sets the starting slot.
func WithSlot(slot uint64) Option {
	return func(l *Ledger) { l.slot = slot }
}

// WithSlotsPerQuery advances the slot by n after every getSlot call so that
// slot waits make progress without a producer.
func WithSlotsPerQuery(n uint64) Option {
	return func(l *Ledger) { l.slotsPerQuery = n }
}

// WithConfirmAfter reports a landed transaction as processed for n status
// queries before reporting it confirmed. Negative n never confirms.
func WithConfirmAfter(n int) Option {
	return func(l *Ledger) { l.confirmAfter = n }
}

// WithRegistry uses reg to recognise programs instead of the embedded descriptors.
func WithRegistry(reg *idl.Registry) Option {
	return func(l *Ledger) { l.registry = reg }
}

// WithBlockhashTTL sets how many slots a blockhash stays valid.
func WithBlockhashTTL(slots uint64) Option {
	return func(l *Ledger) { l.blockhashTTL = slots }
}

type txRecord struct {
	slot    uint64
	err     json.RawMessage
	queries int
}

// Ledger is a single-node in-memory ledger. It is safe for concurrent use.
type Ledger struct {
	mu            sync.Mutex
	slot          uint64
	slotsPerQuery uint64
	confirmAfter  int
	blockhashTTL  uint64
	registry      *idl.Registry
	accounts      map[chain.Address]*chain.AccountInfo
	blockhashes   map[chain.Hash]uint64
	txs           map[chain.Signature]*txRecord
	failures      map[string]error
	sent          int
}

var _ chain.LedgerRPC = (*Ledger)(nil)

// New creates a ledger at slot 1.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		slot:         1,
		blockhashTTL: defaultBlockhashTTL,
		accounts:     make(map[chain.Address]*chain.AccountInfo),
		blockhashes:  make(map[chain.Hash]uint64),
		txs:          make(map[chain.Signature]*txRecord),
		failures:     make(map[string]error),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.registry == nil {
		l.registry = idl.MustLoad()
	}
	return l
}

// Registry returns the descriptor registry the ledger executes against.
func (l *Ledger) Registry() *idl.Registry { return l.registry }

// Slot returns the current slot without advancing it.
func (l *Ledger) Slot() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slot
}

// AdvanceSlots moves the clock forward.
func (l *Ledger) AdvanceSlots(n uint64) {
	l.mu.Lock()
	l.slot += n
	l.mu.Unlock()
}

// ExpireBlockhashes invalidates every blockhash handed out so far.
func (l *Ledger) ExpireBlockhashes() {
	l.mu.Lock()
	l.blockhashes = make(map[chain.Hash]uint64)
	l.mu.Unlock()
}

// FailNext makes the next call of method fail with a transport error.
func (l *Ledger) FailNext(method string, err error) {
	l.mu.Lock()
	l.failures[method] = err
	l.mu.Unlock()
}

// SetAccount stores an account directly.
func (l *Ledger) SetAccount(addr chain.Address, info chain.AccountInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := info
	cp.Data = append([]byte(nil), info.Data...)
	l.accounts[addr] = &cp
}

// Account returns a copy of the stored account.
func (l *Ledger) Account(addr chain.Address) (chain.AccountInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[addr]
	if !ok {
		return chain.AccountInfo{}, false
	}
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	return cp, true
}

// Sent returns the number of transactions accepted by SendTransaction.
func (l *Ledger) Sent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent
}

func (l *Ledger) injected(method string) error {
	if err, ok := l.failures[method]; ok {
		delete(l.failures, method)
		return &chain.TransportError{Method: method, Err: err}
	}
	return nil
}

func (l *Ledger) GetLatestBlockhash(_ context.Context, _ chain.Commitment) (*chain.LatestBlockhash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.injected("getLatestBlockhash"); err != nil {
		return nil, err
	}
	seed := make([]byte, 16)
	binary.LittleEndian.PutUint64(seed, l.slot)
	binary.LittleEndian.PutUint64(seed[8:], uint64(len(l.blockhashes)))
	h := chain.Hash(sha256.Sum256(seed))
	l.blockhashes[h] = l.slot
	return &chain.LatestBlockhash{Blockhash: h, LastValidBlockHeight: l.slot + l.blockhashTTL}, nil
}

func (l *Ledger) GetAccountInfo(_ context.Context, addr chain.Address, _ chain.Commitment) (*chain.AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.injected("getAccountInfo"); err != nil {
		return nil, err
	}
	a, ok := l.accounts[addr]
	if !ok {
		return nil, nil
	}
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	return &cp, nil
}

func (l *Ledger) GetSlot(_ context.Context, _ chain.Commitment) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.injected("getSlot"); err != nil {
		return 0, err
	}
	slot := l.slot
	l.slot += l.slotsPerQuery
	return slot, nil
}

func (l *Ledger) GetBalance(_ context.Context, addr chain.Address, _ chain.Commitment) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.injected("getBalance"); err != nil {
		return 0, err
	}
	if a, ok := l.accounts[addr]; ok {
		return a.Lamports, nil
	}
	return 0, nil
}

func (l *Ledger) GetVersion(_ context.Context) (*chain.Version, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.injected("getVersion"); err != nil {
		return nil, err
	}
	return &chain.Version{Core: "chaintest", FeatureSet: 1}, nil
}

// RequestAirdrop credits addr and records a landed transfer.
func (l *Ledger) RequestAirdrop(_ context.Context, addr chain.Address, lamports uint64, _ chain.Commitment) (chain.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.injected("requestAirdrop"); err != nil {
		return chain.Signature{}, err
	}
	a, ok := l.accounts[addr]
	if !ok {
		a = &chain.AccountInfo{Owner: chain.SystemProgramID}
		l.accounts[addr] = a
	}
	a.Lamports += lamports

	var sig chain.Signature
	digest := sha256.Sum256(append(addr[:], byte(len(l.txs)), byte(len(l.txs)>>8)))
	copy(sig[:], digest[:])
	copy(sig[32:], digest[:])
	l.txs[sig] = &txRecord{slot: l.slot}
	l.slot++
	return sig, nil
}

func (l *Ledger) GetSignatureStatuses(_ context.Context, sigs ...chain.Signature) ([]*chain.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.injected("getSignatureStatuses"); err != nil {
		return nil, err
	}
	out := make([]*chain.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		rec, ok := l.txs[sig]
		if !ok {
			continue
		}
		rec.queries++
		status := chain.CommitmentProcessed
		if l.confirmAfter >= 0 && rec.queries > l.confirmAfter {
			status = chain.CommitmentConfirmed
		}
		out[i] = &chain.SignatureStatus{Slot: rec.slot, Err: rec.err, ConfirmationStatus: status}
	}
	return out, nil
}

// SendTransaction verifies and executes a wire transaction. Rejections during
// preflight are returned as the node does: a -32002 RPC error whose data holds
// the transaction error and program logs. With preflight skipped a failing
// transaction lands and carries its error in the signature status.
func (l *Ledger) SendTransaction(_ context.Context, wire []byte, opts chain.SendOptions) (chain.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.injected("sendTransaction"); err != nil {
		return chain.Signature{}, err
	}

	tx, err := chain.ParseTransaction(wire)
	if err != nil {
		return chain.Signature{}, &chain.RPCError{Code: -32602, Message: fmt.Sprintf("failed to deserialize transaction: %v", err)}
	}
	if err := tx.VerifySignatures(); err != nil {
		return chain.Signature{}, &chain.RPCError{Code: -32003, Message: "Transaction signature verification failure"}
	}
	sig := tx.ID()
	if _, dup := l.txs[sig]; dup {
		return chain.Signature{}, preflightError(txErrorJSON("AlreadyProcessed"), nil)
	}

	issued, ok := l.blockhashes[tx.Message.RecentBlockhash]
	if !ok || l.slot > issued+l.blockhashTTL {
		if opts.SkipPreflight {
			// Never lands.
			l.sent++
			return sig, nil
		}
		return chain.Signature{}, preflightError(txErrorJSON("BlockhashNotFound"), nil)
	}

	run := newExecution(l, tx.Message)
	if failure := run.execute(); failure != nil {
		if err := l.reject(opts, sig, failure.json(), run.logs); err != nil {
			return chain.Signature{}, err
		}
		return sig, nil
	}
	run.commit()
	l.sent++
	l.txs[sig] = &txRecord{slot: l.slot}
	l.slot++
	return sig, nil
}

func (l *Ledger) reject(opts chain.SendOptions, sig chain.Signature, errJSON json.RawMessage, logs []string) error {
	if !opts.SkipPreflight {
		return preflightError(errJSON, logs)
	}
	l.sent++
	l.txs[sig] = &txRecord{slot: l.slot, err: errJSON}
	l.slot++
	return nil
}

func preflightError(errJSON json.RawMessage, logs []string) error {
	if logs == nil {
		logs = []string{}
	}
	data, _ := json.Marshal(map[string]interface{}{
		"err":  errJSON,
		"logs": logs,
	})
	return &chain.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed: Error processing Instruction",
		Data:    data,
	}
}

func txErrorJSON(kind string) json.RawMessage {
	b, _ := json.Marshal(kind)
	return b
}
