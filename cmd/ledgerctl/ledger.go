package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/keystore"
)

const lamportsPerSOL = 1_000_000_000

func formatLamports(v uint64) string {
	return fmt.Sprintf("%s lamports (%s SOL)", humanize.Comma(int64(v)), strconv.FormatFloat(float64(v)/lamportsPerSOL, 'f', -1, 64))
}

func keysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys",
	}

	var out string
	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a keypair file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := chain.NewKeypair()
			if err != nil {
				return err
			}
			if err := keystore.WriteKeypairFile(out, kp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", kp.PublicKey())
			return nil
		},
	}
	keygen.Flags().StringVarP(&out, "out", "o", "id.json", "output file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List keys loaded from the keys directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			addrs, err := a.keys.Addresses(cmd.Context())
			if err != nil {
				return err
			}
			for _, addr := range addrs {
				fmt.Fprintln(cmd.OutOrStdout(), addr)
			}
			return nil
		},
	}

	address := &cobra.Command{
		Use:   "address",
		Short: "Print the address of the selected signer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := appFrom(cmd.Context()).signer(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.PublicKey())
			return nil
		},
	}

	cmd.AddCommand(keygen, list, address)
	return cmd
}

func airdropCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "airdrop LAMPORTS [ADDRESS]",
		Short: "Request an airdrop and wait for it to confirm",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			lamports, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("lamports: %w", err)
			}
			addr, err := a.target(cmd.Context(), args[1:])
			if err != nil {
				return err
			}
			sig, ok, err := a.manager.FundAndConfirm(cmd.Context(), addr, lamports, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", sig, confirmation(ok))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "confirmation timeout")
	return cmd
}

func balanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [ADDRESS]",
		Short: "Show an account balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			addr, err := a.target(cmd.Context(), args)
			if err != nil {
				return err
			}
			bal, err := a.manager.GetBalance(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatLamports(bal))
			return nil
		},
	}
}

func slotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "slot",
		Short: "Show the current slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := appFrom(cmd.Context()).manager.GetSlot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), slot)
			return nil
		},
	}
}

func waitSlotCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait-slot SLOT",
		Short: "Wait until the ledger reaches a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("slot: %w", err)
			}
			ok, err := appFrom(cmd.Context()).manager.WaitForSlotHeight(cmd.Context(), target, timeout)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("slot %d not reached before timeout", target)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reached slot %d\n", target)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait")
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the node version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := appFrom(cmd.Context()).manager.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "solana-core %s (feature set %d)\n", v.Core, v.FeatureSet)
			return nil
		},
	}
}

func confirmation(ok bool) string {
	if ok {
		return "confirmed"
	}
	return "submitted, not yet confirmed"
}

// printResult reports a landed transaction.
func printResult(cmd *cobra.Command, res *chain.TxResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", res.Signature, confirmation(res.Confirmed))
}
