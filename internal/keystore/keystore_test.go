package keystore

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledger_client/internal/chain"
)

func TestMemoryStore_GenerateGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	addr, err := s.Generate(ctx)
	require.NoError(t, err)

	signer, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, addr, signer.PublicKey())

	sig, err := signer.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.True(t, chain.Verify(addr, []byte("payload"), sig))

	require.NoError(t, s.Delete(ctx, addr))
	_, err = s.Get(ctx, addr)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, addr), ErrNotFound)
}

func TestMemoryStore_ImportDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	kp, err := chain.KeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)

	addr, err := s.Import(ctx, kp)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), addr)

	_, err = s.Import(ctx, kp)
	assert.ErrorIs(t, err, ErrExists)
}

func TestMemoryStore_Derive(t *testing.T) {
	ctx := context.Background()
	master := []byte("0123456789abcdef0123456789abcdef")

	a1, err := NewMemoryStore(master).Derive(ctx, "payer")
	require.NoError(t, err)
	a2, err := NewMemoryStore(master).Derive(ctx, " payer ")
	require.NoError(t, err)
	assert.Equal(t, a1, a2, "derivation must be deterministic")

	s := NewMemoryStore(master)
	b, err := s.Derive(ctx, "authority")
	require.NoError(t, err)
	assert.NotEqual(t, a1, b)
	_, err = s.Get(ctx, b)
	assert.NoError(t, err)

	_, err = s.Derive(ctx, "")
	assert.Error(t, err)
	_, err = NewMemoryStore(nil).Derive(ctx, "payer")
	assert.ErrorIs(t, err, ErrNoMasterSeed)
}

func TestMemoryStore_AddressesSorted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	for i := 0; i < 5; i++ {
		_, err := s.Generate(ctx)
		require.NoError(t, err)
	}
	addrs, err := s.Addresses(ctx)
	require.NoError(t, err)
	require.Len(t, addrs, 5)
	for i := 1; i < len(addrs); i++ {
		assert.Less(t, addrs[i-1].String(), addrs[i].String())
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore([]byte("master-seed-for-concurrency-test"))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr, err := s.Generate(ctx)
			assert.NoError(t, err)
			_, err = s.Get(ctx, addr)
			assert.NoError(t, err)
			_, err = s.Derive(ctx, "shared")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	addrs, err := s.Addresses(ctx)
	require.NoError(t, err)
	assert.Len(t, addrs, 17)
}

func TestKeypairFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys", "payer.json")
	seed := make([]byte, 32)
	seed[0] = 7
	kp, err := chain.KeypairFromSeed(seed)
	require.NoError(t, err)

	require.NoError(t, WriteKeypairFile(path, kp))
	assert.ErrorIs(t, WriteKeypairFile(path, kp), ErrExists)

	got, err := ReadKeypairFile(path)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), got.PublicKey())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('['), data[0])
	assert.Equal(t, "[7,", string(data[:3]))
}

func TestReadKeypairFile_InsecureMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "open.json")
	kp, err := chain.KeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	require.NoError(t, WriteKeypairFile(path, kp))
	require.NoError(t, os.Chmod(path, 0o644))

	_, err = ReadKeypairFile(path)
	assert.ErrorIs(t, err, ErrInsecureFileMode)
}

func TestParseKeypair_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":     "hello",
		"short":        "[1,2,3]",
		"out of range": "[" + repeatInts("256", 64) + "]",
		"wrong public": "[" + repeatInts("1", 64) + "]",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseKeypair([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestImportDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	var want []chain.Address
	for i := byte(1); i <= 3; i++ {
		seed := make([]byte, 32)
		seed[0] = i
		kp, err := chain.KeypairFromSeed(seed)
		require.NoError(t, err)
		require.NoError(t, WriteKeypairFile(filepath.Join(dir, kp.PublicKey().String()+".json"), kp))
		want = append(want, kp.PublicKey())
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o600))

	s := NewMemoryStore(nil)
	got, err := ImportDir(ctx, s, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, got)

	again, err := ImportDir(ctx, s, dir)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func repeatInts(v string, n int) string {
	out := v
	for i := 1; i < n; i++ {
		out += "," + v
	}
	return out
}
