package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/idl"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeFile(t, dir, "ledger.yaml", `
rpc:
  url: https://rpc.example.com
  timeout: 10s
  rate_limit: 5
transactions:
  commitment: finalized
  confirm_timeout: 30s
programs:
  round: 5kS2nb5CSCVcdb4N7iA1kQuAZYKFttXagoHv2TxWmzg9
log:
  level: debug
`)
	t.Setenv("LEDGER_RPC_URL", "http://localhost:9000")
	t.Setenv("LEDGER_POLL_INTERVAL", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPC.URL != "http://localhost:9000" {
		t.Errorf("RPC.URL = %q, want env override", cfg.RPC.URL)
	}
	if cfg.RPC.Timeout != 10*time.Second || cfg.RPC.RateLimit != 5 {
		t.Errorf("RPC = %+v", cfg.RPC)
	}
	if cfg.Tx.Commitment != "finalized" || cfg.Tx.ConfirmTimeout != 30*time.Second {
		t.Errorf("Tx = %+v", cfg.Tx)
	}
	if cfg.Tx.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.Tx.PollInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}

	ids, err := cfg.ProgramIDs()
	if err != nil {
		t.Fatalf("ProgramIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[idl.Round].String() != "5kS2nb5CSCVcdb4N7iA1kQuAZYKFttXagoHv2TxWmzg9" {
		t.Errorf("ProgramIDs() = %v", ids)
	}

	mc := cfg.ManagerConfig(nil)
	if mc.Commitment != chain.CommitmentFinalized || mc.PollInterval != 250*time.Millisecond {
		t.Errorf("ManagerConfig() = %+v", mc)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, dir, ".env", "LEDGER_TXLOG_DSN=postgres://ledger@localhost/ledger\nLEDGER_MASTER_SEED=s3cret\n")
	t.Cleanup(func() {
		os.Unsetenv("LEDGER_TXLOG_DSN")
		os.Unsetenv("LEDGER_MASTER_SEED")
	})

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TxLog.DSN != "postgres://ledger@localhost/ledger" {
		t.Errorf("TxLog.DSN = %q", cfg.TxLog.DSN)
	}
	if cfg.Keys.MasterSeed != "s3cret" {
		t.Errorf("Keys.MasterSeed = %q", cfg.Keys.MasterSeed)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() succeeded for a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad url", func(c *Config) { c.RPC.URL = "ftp://x" }, "rpc.url"},
		{"no host", func(c *Config) { c.RPC.URL = "http://" }, "rpc.url"},
		{"zero timeout", func(c *Config) { c.RPC.Timeout = 0 }, "rpc.timeout"},
		{"negative rate", func(c *Config) { c.RPC.RateLimit = -1 }, "rate_limit"},
		{"commitment", func(c *Config) { c.Tx.Commitment = "max" }, "commitment"},
		{"poll beyond timeout", func(c *Config) { c.Tx.PollInterval = time.Minute }, "poll_interval"},
		{"program id", func(c *Config) { c.Programs.Counter = "not-base58!" }, "programs.counter"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestRegistryOverrides(t *testing.T) {
	cfg := Default()
	override := chain.Address{7}
	cfg.Programs.Counter = override.String()

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	got, err := reg.ProgramID(idl.Counter)
	if err != nil || got != override {
		t.Errorf("ProgramID(counter) = %s, %v; want %s", got, err, override)
	}
}
