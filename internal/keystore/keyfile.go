package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/R3E-Network/ledger_client/internal/chain"
)

const maxKeyFileSize = 4 << 10

// ReadKeypairFile loads a keypair stored as a JSON array of 64 byte values,
// the layout written by the ledger's own CLI. Files readable by group or
// other are refused.
func ReadKeypairFile(path string) (*chain.Keypair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open key file %q: %w", path, err)
	}
	defer f.Close()

	if err := checkPermissions(f); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(f, maxKeyFileSize))
	if err != nil {
		return nil, fmt.Errorf("read key file %q: %w", path, err)
	}
	kp, err := ParseKeypair(data)
	if err != nil {
		return nil, fmt.Errorf("parse key file %q: %w", path, err)
	}
	return kp, nil
}

// ParseKeypair decodes the JSON array form of a keypair.
func ParseKeypair(data []byte) (*chain.Keypair, error) {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, err
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}
	return chain.KeypairFromBytes(raw)
}

// WriteKeypairFile stores kp at path with owner-only permissions. An existing
// file is never overwritten.
func WriteKeypairFile(path string, kp *chain.Keypair) error {
	raw := kp.Bytes()
	ints := make([]int, len(raw))
	for i, b := range raw {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return fmt.Errorf("create key file %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write key file %q: %w", path, err)
	}
	return f.Close()
}

// ImportDir imports every *.json keypair file in dir into s and returns the
// imported addresses. Keys already in the store are skipped.
func ImportDir(ctx context.Context, s Store, dir string) ([]chain.Address, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	var out []chain.Address
	for _, p := range paths {
		kp, err := ReadKeypairFile(p)
		if err != nil {
			return out, err
		}
		addr, err := s.Import(ctx, kp)
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func checkPermissions(f *os.File) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat key file %q: %w", f.Name(), err)
	}
	if fi.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("key file %q has mode %04o: %w", f.Name(), fi.Mode().Perm(), ErrInsecureFileMode)
	}
	return nil
}
