// Package keystore holds the signing keys used by the CLI. Keys stay inside
// the store; callers receive chain.Signer handles and pass them explicitly to
// each operation.
package keystore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/R3E-Network/ledger_client/internal/chain"
)

var (
	ErrNotFound         = errors.New("key not found")
	ErrExists           = errors.New("key already exists")
	ErrNoMasterSeed     = errors.New("master seed not configured")
	ErrInsecureFileMode = errors.New("insecure key file permissions")
)

var deriveSalt = []byte("ledger-client-keystore")

// Store manages signing keys by address.
type Store interface {
	Generate(ctx context.Context) (chain.Address, error)
	Import(ctx context.Context, kp *chain.Keypair) (chain.Address, error)
	Get(ctx context.Context, addr chain.Address) (chain.Signer, error)
	Derive(ctx context.Context, label string) (chain.Address, error)
	Addresses(ctx context.Context) ([]chain.Address, error)
	Delete(ctx context.Context, addr chain.Address) error
}

// MemoryStore is a Store backed by a map. Derived keys are a pure function of
// the master seed and label, so they survive restarts without being persisted.
type MemoryStore struct {
	mu     sync.RWMutex
	master []byte
	keys   map[chain.Address]*chain.Keypair
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. masterSeed may be nil, in which case
// Derive is unavailable.
func NewMemoryStore(masterSeed []byte) *MemoryStore {
	return &MemoryStore{
		master: append([]byte(nil), masterSeed...),
		keys:   make(map[chain.Address]*chain.Keypair),
	}
}

func (s *MemoryStore) Generate(_ context.Context) (chain.Address, error) {
	kp, err := chain.NewKeypair()
	if err != nil {
		return chain.Address{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[kp.PublicKey()] = kp
	return kp.PublicKey(), nil
}

func (s *MemoryStore) Import(_ context.Context, kp *chain.Keypair) (chain.Address, error) {
	if kp == nil {
		return chain.Address{}, errors.New("nil keypair")
	}
	addr := kp.PublicKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[addr]; exists {
		return addr, fmt.Errorf("%w: %s", ErrExists, addr)
	}
	s.keys[addr] = kp
	return addr, nil
}

func (s *MemoryStore) Get(_ context.Context, addr chain.Address) (chain.Signer, error) {
	s.mu.RLock()
	kp, ok := s.keys[addr]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return kp, nil
}

// Derive deterministically creates the key for label and adds it to the
// store. Deriving the same label twice returns the same address.
func (s *MemoryStore) Derive(_ context.Context, label string) (chain.Address, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return chain.Address{}, errors.New("label is required")
	}
	if len(s.master) == 0 {
		return chain.Address{}, ErrNoMasterSeed
	}

	seed := make([]byte, 32)
	r := hkdf.New(sha256.New, s.master, deriveSalt, []byte("ed25519:"+label))
	if _, err := io.ReadFull(r, seed); err != nil {
		return chain.Address{}, fmt.Errorf("derive key: %w", err)
	}
	kp, err := chain.KeypairFromSeed(seed)
	if err != nil {
		return chain.Address{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[kp.PublicKey()]; !exists {
		s.keys[kp.PublicKey()] = kp
	}
	return kp.PublicKey(), nil
}

// Addresses returns the stored addresses in base58 order.
func (s *MemoryStore) Addresses(_ context.Context) ([]chain.Address, error) {
	s.mu.RLock()
	out := make([]chain.Address, 0, len(s.keys))
	for addr := range s.keys {
		out = append(out, addr)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, addr chain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	delete(s.keys, addr)
	return nil
}
