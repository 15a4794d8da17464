package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/config"
	"github.com/R3E-Network/ledger_client/internal/idl"
	"github.com/R3E-Network/ledger_client/internal/keystore"
	"github.com/R3E-Network/ledger_client/internal/txlog"
	"github.com/R3E-Network/ledger_client/pkg/logger"
)

// app is the wiring shared by every command.
type app struct {
	cfg      *config.Config
	opts     *globalOptions
	log      *logger.Logger
	registry *idl.Registry
	manager  *chain.Manager
	keys     keystore.Store
	txlog    txlog.Store
	ops      *http.Server
	closers  []func() error
}

type appKey struct{}

func withApp(ctx context.Context, a *app) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

func appFrom(ctx context.Context) *app {
	a, _ := ctx.Value(appKey{}).(*app)
	return a
}

func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	a := &app{cfg: cfg, opts: opts, log: cfg.Logger(programName)}
	if a.registry, err = cfg.Registry(); err != nil {
		return nil, err
	}
	client, err := chain.NewClient(cfg.ClientConfig(cfg.Logger("chain.rpc")))
	if err != nil {
		return nil, err
	}

	if cfg.TxLog.DSN != "" {
		store, err := txlog.Open(ctx, cfg.TxLog.DSN)
		if err != nil {
			return nil, err
		}
		a.txlog = store
		a.closers = append(a.closers, store.Close)
	} else {
		a.txlog = txlog.NewMemoryStore()
	}

	mc := cfg.ManagerConfig(cfg.Logger("chain.manager"))
	mc.Resolver = a.registry
	mc.Recorder = txlog.NewRecorder(a.txlog)
	a.manager = chain.NewManager(client, mc)

	keys := keystore.NewMemoryStore([]byte(cfg.Keys.MasterSeed))
	if cfg.Keys.Dir != "" {
		imported, err := keystore.ImportDir(ctx, keys, cfg.Keys.Dir)
		if err != nil {
			return nil, err
		}
		a.log.WithField("count", len(imported)).Debug("imported keys")
	}
	a.keys = keys

	if cfg.Metrics.Addr != "" {
		a.ops = startOpsServer(cfg.Metrics.Addr, a.manager, a.log)
	}
	return a, nil
}

// Close stops the ops listener and releases stores.
func (a *app) Close() error {
	var errs []error
	if a.ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.ops.Shutdown(ctx))
	}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// signer resolves the signing key chosen by the global flags.
func (a *app) signer(ctx context.Context) (chain.Signer, error) {
	switch {
	case a.opts.keypair != "":
		kp, err := keystore.ReadKeypairFile(a.opts.keypair)
		if err != nil {
			return nil, err
		}
		if _, err := a.keys.Import(ctx, kp); err != nil && !errors.Is(err, keystore.ErrExists) {
			return nil, err
		}
		return kp, nil
	case a.opts.signer != "":
		addr, err := chain.ParseAddress(a.opts.signer)
		if err != nil {
			return nil, fmt.Errorf("--signer: %w", err)
		}
		return a.keys.Get(ctx, addr)
	case a.opts.derive != "":
		addr, err := a.keys.Derive(ctx, a.opts.derive)
		if err != nil {
			return nil, err
		}
		return a.keys.Get(ctx, addr)
	}
	return nil, errors.New("no signer: pass --keypair, --signer or --derive")
}

// target returns the address named by args[0], or the signer's address.
func (a *app) target(ctx context.Context, args []string) (chain.Address, error) {
	if len(args) > 0 {
		return chain.ParseAddress(args[0])
	}
	s, err := a.signer(ctx)
	if err != nil {
		return chain.Address{}, err
	}
	return s.PublicKey(), nil
}
