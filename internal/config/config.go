// Package config loads ledgerctl settings from a YAML file, an optional .env
// file and LEDGER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/idl"
	"github.com/R3E-Network/ledger_client/pkg/logger"
)

// Config is the complete client configuration.
type Config struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Tx       TxConfig       `yaml:"transactions"`
	Programs ProgramsConfig `yaml:"programs"`
	Log      LogConfig      `yaml:"log"`
	TxLog    TxLogConfig    `yaml:"txlog"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Keys     KeysConfig     `yaml:"keys"`
}

type RPCConfig struct {
	URL       string        `yaml:"url" env:"LEDGER_RPC_URL"`
	Timeout   time.Duration `yaml:"timeout" env:"LEDGER_RPC_TIMEOUT"`
	RateLimit float64       `yaml:"rate_limit" env:"LEDGER_RPC_RATE_LIMIT"`
	RateBurst int           `yaml:"rate_burst" env:"LEDGER_RPC_RATE_BURST"`
}

type TxConfig struct {
	Commitment     string        `yaml:"commitment" env:"LEDGER_COMMITMENT"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" env:"LEDGER_CONFIRM_TIMEOUT"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"LEDGER_POLL_INTERVAL"`
	SkipPreflight  bool          `yaml:"skip_preflight" env:"LEDGER_SKIP_PREFLIGHT"`
}

// ProgramsConfig overrides the program addresses baked into the descriptors.
type ProgramsConfig struct {
	Counter  string `yaml:"counter" env:"LEDGER_COUNTER_PROGRAM_ID"`
	Round    string `yaml:"round" env:"LEDGER_ROUND_PROGRAM_ID"`
	Username string `yaml:"username" env:"LEDGER_USERNAME_PROGRAM_ID"`
	IDLDir   string `yaml:"idl_dir" env:"LEDGER_IDL_DIR"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEDGER_LOG_LEVEL"`
	Format string `yaml:"format" env:"LEDGER_LOG_FORMAT"`
}

// TxLogConfig selects the audit store. An empty DSN keeps the trail in memory.
type TxLogConfig struct {
	DSN string `yaml:"dsn" env:"LEDGER_TXLOG_DSN"`
}

// MetricsConfig enables the ops listener when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"LEDGER_METRICS_ADDR"`
}

type KeysConfig struct {
	Dir string `yaml:"dir" env:"LEDGER_KEYS_DIR"`
	// MasterSeed enables deterministic key derivation. Only read from the
	// environment.
	MasterSeed string `yaml:"-" env:"LEDGER_MASTER_SEED"`
}

// Default returns settings for a local test validator.
func Default() *Config {
	return &Config{
		RPC: RPCConfig{
			URL:     "http://127.0.0.1:8899",
			Timeout: 30 * time.Second,
		},
		Tx: TxConfig{
			Commitment:     string(chain.CommitmentConfirmed),
			ConfirmTimeout: chain.DefaultConfirmTimeout,
			PollInterval:   chain.DefaultPollInterval,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (optional), then .env, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	err := envdecode.Decode(cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	return nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.RPC.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("rpc.url: %q is not an http(s) URL", c.RPC.URL)
	}
	if c.RPC.Timeout <= 0 {
		return errors.New("rpc.timeout must be positive")
	}
	if c.RPC.RateLimit < 0 || c.RPC.RateBurst < 0 {
		return errors.New("rpc.rate_limit and rpc.rate_burst must not be negative")
	}
	if _, err := chain.ParseCommitment(c.Tx.Commitment); err != nil {
		return fmt.Errorf("transactions.commitment: %w", err)
	}
	if c.Tx.ConfirmTimeout <= 0 || c.Tx.PollInterval <= 0 {
		return errors.New("transactions.confirm_timeout and poll_interval must be positive")
	}
	if c.Tx.PollInterval > c.Tx.ConfirmTimeout {
		return errors.New("transactions.poll_interval exceeds confirm_timeout")
	}
	if _, err := c.ProgramIDs(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// ProgramIDs returns the configured program address overrides.
func (c *Config) ProgramIDs() (map[idl.Program]chain.Address, error) {
	out := make(map[idl.Program]chain.Address)
	for p, s := range map[idl.Program]string{
		idl.Counter:  c.Programs.Counter,
		idl.Round:    c.Programs.Round,
		idl.Username: c.Programs.Username,
	} {
		if s == "" {
			continue
		}
		addr, err := chain.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("programs.%s: %w", p, err)
		}
		out[p] = addr
	}
	return out, nil
}

// Registry loads program descriptors with the configured overrides.
func (c *Config) Registry() (*idl.Registry, error) {
	ids, err := c.ProgramIDs()
	if err != nil {
		return nil, err
	}
	return idl.Load(idl.Options{Dir: c.Programs.IDLDir, ProgramIDs: ids})
}

// Logger returns a logger for component at the configured level and format.
func (c *Config) Logger(component string) *logger.Logger {
	return logger.New(component, logger.Config{Level: c.Log.Level, Format: c.Log.Format})
}

// ClientConfig returns the RPC client settings.
func (c *Config) ClientConfig(log *logger.Logger) chain.Config {
	return chain.Config{
		RPCURL:    c.RPC.URL,
		Timeout:   c.RPC.Timeout,
		RateLimit: c.RPC.RateLimit,
		RateBurst: c.RPC.RateBurst,
		Logger:    log,
	}
}

// ManagerConfig returns the transaction manager settings. Resolver and
// Recorder are left for the caller.
func (c *Config) ManagerConfig(log *logger.Logger) chain.ManagerConfig {
	return chain.ManagerConfig{
		Commitment:     chain.Commitment(c.Tx.Commitment),
		ConfirmTimeout: c.Tx.ConfirmTimeout,
		PollInterval:   c.Tx.PollInterval,
		SkipPreflight:  c.Tx.SkipPreflight,
		Logger:         log,
	}
}
