// Command ledgerctl drives the ledger programs from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const programName = "ledgerctl"

type globalOptions struct {
	configFile  string
	debug       bool
	keypair     string
	signer      string
	derive      string
	metricsAddr string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	var a *app

	root := &cobra.Command{
		Use:           programName,
		Short:         "Client for the counter, round and username programs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cmd.SetContext(withApp(cmd.Context(), a))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "path to config file")
	flags.BoolVarP(&opts.debug, "debug", "D", false, "enable debug logging")
	flags.StringVarP(&opts.keypair, "keypair", "k", "", "keypair file used to sign")
	flags.StringVar(&opts.signer, "signer", "", "address of a key from the keys directory used to sign")
	flags.StringVar(&opts.derive, "derive", "", "label of a key derived from LEDGER_MASTER_SEED used to sign")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "address for the /metrics and /healthz listener")

	root.AddCommand(
		keysCommand(),
		airdropCommand(),
		balanceCommand(),
		slotCommand(),
		waitSlotCommand(),
		versionCommand(),
		counterCommand(),
		roundCommand(),
		usernameCommand(),
		txlogCommand(),
		serveCommand(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		stop()
		os.Exit(1)
	}
}
