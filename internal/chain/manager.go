package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/R3E-Network/ledger_client/internal/metrics"
	"github.com/R3E-Network/ledger_client/pkg/logger"
)

// TxStatus is a point in a transaction's life as seen by the client.
type TxStatus string

const (
	TxSubmitted TxStatus = "submitted"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
	TxTimeout   TxStatus = "timeout"
)

// TxEvent describes one lifecycle step of a transaction.
type TxEvent struct {
	Label     string
	Signature Signature
	FeePayer  Address
	Status    TxStatus
	Err       error
}

// TxRecorder receives lifecycle events. Recording failures are logged and
// never fail the transaction.
type TxRecorder interface {
	RecordTx(ctx context.Context, ev TxEvent) error
}

// ManagerConfig configures a Manager. Zero values select defaults.
type ManagerConfig struct {
	Commitment     Commitment
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	SkipPreflight  bool
	Resolver       ErrorResolver
	Recorder       TxRecorder
	Logger         *logger.Logger
	Clock          Clock
	Sleep          SleepFunc
}

// Manager compiles, signs, submits and confirms transactions, and serves the
// read paths programs use to fetch accounts.
type Manager struct {
	rpc LedgerRPC
	cfg ManagerConfig
	log *logger.Logger
}

// NewManager creates a transaction manager over rpc.
func NewManager(rpc LedgerRPC, cfg ManagerConfig) *Manager {
	if cfg.Commitment == "" {
		cfg.Commitment = CommitmentConfirmed
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("chain.manager")
	}
	return &Manager{rpc: rpc, cfg: cfg, log: log}
}

// RPC returns the underlying ledger connection.
func (m *Manager) RPC() LedgerRPC { return m.rpc }

// Commitment returns the commitment used for reads and confirmation.
func (m *Manager) Commitment() Commitment { return m.cfg.Commitment }

func (m *Manager) poller(kind string) Poller {
	return Poller{Interval: m.cfg.PollInterval, Now: m.cfg.Clock, Sleep: m.cfg.Sleep, Kind: kind}
}

func (m *Manager) timeout(d time.Duration) time.Duration {
	if d <= 0 {
		return m.cfg.ConfirmTimeout
	}
	return d
}

// Compile builds a message against a blockhash fetched now. Messages are not
// meant to be cached: the blockhash ages out within a couple of minutes.
func (m *Manager) Compile(ctx context.Context, feePayer Address, instructions ...Instruction) (*Message, error) {
	bh, err := m.rpc.GetLatestBlockhash(ctx, m.cfg.Commitment)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	return NewMessage(feePayer, bh.Blockhash, instructions...)
}

// Sign signs msg with exactly its required signers.
func (m *Manager) Sign(msg *Message, signers ...Signer) (*Transaction, error) {
	return SignMessage(msg, signers...)
}

// Submit sends tx with preflight simulation unless disabled. A simulation
// rejection is returned as *ProgramError or *TransactionError.
func (m *Manager) Submit(ctx context.Context, tx *Transaction) (Signature, error) {
	wire, err := tx.MarshalBinary()
	if err != nil {
		return Signature{}, err
	}
	sig, err := m.rpc.SendTransaction(ctx, wire, SendOptions{
		SkipPreflight:       m.cfg.SkipPreflight,
		PreflightCommitment: m.cfg.Commitment,
	})
	if err != nil {
		return Signature{}, preflightFailure(err, tx.Message, m.cfg.Resolver)
	}
	if sig != tx.ID() {
		m.log.WithFields(map[string]interface{}{
			"returned": sig.String(),
			"expected": tx.ID().String(),
		}).Warn("node returned unexpected signature")
	}
	return sig, nil
}

// Confirm polls the signature status until it reaches the configured
// commitment. It returns false with no error when timeout elapses first.
// A transaction that landed with an error is returned as that error.
func (m *Manager) Confirm(ctx context.Context, sig Signature, timeout time.Duration) (bool, error) {
	return m.confirm(ctx, sig, timeout, nil)
}

func (m *Manager) confirm(ctx context.Context, sig Signature, timeout time.Duration, msg *Message) (bool, error) {
	return m.poller("signature").Until(ctx, m.timeout(timeout), func(ctx context.Context) (bool, error) {
		statuses, err := m.rpc.GetSignatureStatuses(ctx, sig)
		if err != nil {
			return false, err
		}
		if len(statuses) == 0 || statuses[0] == nil {
			return false, nil
		}
		st := statuses[0]
		if st.Failed() {
			return false, decodeTransactionError(string(st.Err), nil, msg, m.cfg.Resolver)
		}
		return st.ConfirmationStatus.Reached(m.cfg.Commitment), nil
	})
}

// SubmitAndConfirm submits tx and waits for it. An unconfirmed transaction is
// not an error: the signature is returned with false.
func (m *Manager) SubmitAndConfirm(ctx context.Context, tx *Transaction, timeout time.Duration) (Signature, bool, error) {
	sig, err := m.Submit(ctx, tx)
	if err != nil {
		return Signature{}, false, err
	}
	ok, err := m.confirm(ctx, sig, timeout, tx.Message)
	return sig, ok, err
}

// TxRequest is a transaction to build and land in one call.
type TxRequest struct {
	// Label names the operation in logs, metrics and the audit trail.
	Label        string
	FeePayer     Signer
	Signers      []Signer
	Instructions []Instruction
	Timeout      time.Duration
}

// TxResult is the outcome of Execute.
type TxResult struct {
	Signature Signature
	Confirmed bool
}

// Execute compiles against a fresh blockhash, signs, submits and confirms.
func (m *Manager) Execute(ctx context.Context, req TxRequest) (*TxResult, error) {
	if req.FeePayer == nil {
		return nil, fmt.Errorf("%s: %w: fee payer", req.Label, ErrMissingSigner)
	}
	feePayer := req.FeePayer.PublicKey()
	start := m.cfg.Clock()
	log := m.log.WithFields(map[string]interface{}{
		"label":     req.Label,
		"fee_payer": feePayer.String(),
	})

	msg, err := m.Compile(ctx, feePayer, req.Instructions...)
	if err != nil {
		return nil, fmt.Errorf("%s: compile: %w", req.Label, err)
	}
	tx, err := m.Sign(msg, append([]Signer{req.FeePayer}, req.Signers...)...)
	if err != nil {
		return nil, fmt.Errorf("%s: sign: %w", req.Label, err)
	}

	sig, err := m.Submit(ctx, tx)
	if err != nil {
		m.finish(ctx, req.Label, TxEvent{Label: req.Label, Signature: tx.ID(), FeePayer: feePayer, Status: TxFailed, Err: err}, start)
		log.WithError(err).Warn("transaction rejected")
		return nil, err
	}
	m.record(ctx, TxEvent{Label: req.Label, Signature: sig, FeePayer: feePayer, Status: TxSubmitted})
	log = log.WithField("signature", sig.String())
	log.Debug("transaction submitted")

	ok, err := m.confirm(ctx, sig, req.Timeout, msg)
	switch {
	case err != nil:
		m.finish(ctx, req.Label, TxEvent{Label: req.Label, Signature: sig, FeePayer: feePayer, Status: TxFailed, Err: err}, start)
		log.WithError(err).Warn("transaction failed")
		return &TxResult{Signature: sig}, err
	case !ok:
		m.finish(ctx, req.Label, TxEvent{Label: req.Label, Signature: sig, FeePayer: feePayer, Status: TxTimeout}, start)
		log.Warn("transaction not confirmed before timeout")
		return &TxResult{Signature: sig}, nil
	}
	m.finish(ctx, req.Label, TxEvent{Label: req.Label, Signature: sig, FeePayer: feePayer, Status: TxConfirmed}, start)
	log.Info("transaction confirmed")
	return &TxResult{Signature: sig, Confirmed: true}, nil
}

func (m *Manager) finish(ctx context.Context, label string, ev TxEvent, start time.Time) {
	outcome := metrics.OutcomeOK
	switch ev.Status {
	case TxTimeout:
		outcome = metrics.OutcomeTimeout
	case TxFailed:
		outcome = metrics.OutcomeRejected
		if IsTransport(ev.Err) {
			outcome = metrics.OutcomeTransport
		}
	}
	metrics.RecordTransaction(label, outcome, m.cfg.Clock().Sub(start))
	m.record(ctx, ev)
}

func (m *Manager) record(ctx context.Context, ev TxEvent) {
	if m.cfg.Recorder == nil {
		return
	}
	if err := m.cfg.Recorder.RecordTx(ctx, ev); err != nil {
		m.log.WithError(err).WithField("label", ev.Label).Warn("record transaction event")
	}
}

// GetSlot returns the current slot.
func (m *Manager) GetSlot(ctx context.Context) (uint64, error) {
	return m.rpc.GetSlot(ctx, m.cfg.Commitment)
}

// WaitForSlotHeight polls until the ledger reaches target. It returns false
// with no error when timeout elapses first.
func (m *Manager) WaitForSlotHeight(ctx context.Context, target uint64, timeout time.Duration) (bool, error) {
	return m.poller("slot").Until(ctx, m.timeout(timeout), func(ctx context.Context) (bool, error) {
		slot, err := m.rpc.GetSlot(ctx, m.cfg.Commitment)
		if err != nil {
			return false, err
		}
		return slot >= target, nil
	})
}

// FetchAccount returns the account at addr or ErrAccountNotFound.
func (m *Manager) FetchAccount(ctx context.Context, addr Address) (*AccountInfo, error) {
	info, err := m.rpc.GetAccountInfo(ctx, addr, m.cfg.Commitment)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return info, nil
}

// GetBalance returns the lamport balance of addr.
func (m *Manager) GetBalance(ctx context.Context, addr Address) (uint64, error) {
	return m.rpc.GetBalance(ctx, addr, m.cfg.Commitment)
}

// RequestAirdrop asks the node to fund addr and returns the airdrop signature.
func (m *Manager) RequestAirdrop(ctx context.Context, addr Address, lamports uint64) (Signature, error) {
	sig, err := m.rpc.RequestAirdrop(ctx, addr, lamports, m.cfg.Commitment)
	if err != nil {
		return Signature{}, fmt.Errorf("request airdrop: %w", err)
	}
	m.log.WithFields(map[string]interface{}{
		"address":   addr.String(),
		"lamports":  humanize.Comma(int64(lamports)),
		"signature": sig.String(),
	}).Info("airdrop requested")
	return sig, nil
}

// FundAndConfirm requests an airdrop and waits for it to confirm.
func (m *Manager) FundAndConfirm(ctx context.Context, addr Address, lamports uint64, timeout time.Duration) (Signature, bool, error) {
	sig, err := m.RequestAirdrop(ctx, addr, lamports)
	if err != nil {
		return Signature{}, false, err
	}
	ok, err := m.Confirm(ctx, sig, timeout)
	if err != nil {
		return sig, false, err
	}
	return sig, ok, nil
}

// Version returns the node version, used as a health probe.
func (m *Manager) Version(ctx context.Context) (*Version, error) {
	v, err := m.rpc.GetVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// IsNotFound reports whether err means the account does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}
