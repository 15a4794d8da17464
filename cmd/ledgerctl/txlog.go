package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/txlog"
)

func txlogCommand() *cobra.Command {
	var (
		label string
		sig   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "txlog",
		Short: "List recorded transaction events (needs txlog.dsn)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := txlog.ListOptions{Label: label, Limit: limit}
			if sig != "" {
				s, err := chain.ParseSignature(sig)
				if err != nil {
					return err
				}
				opts.Signature = s
			}
			entries, err := appFrom(cmd.Context()).txlog.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tLABEL\tSTATUS\tSIGNATURE\tERROR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Label, e.Status, e.Signature, e.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "only this operation, e.g. round.activate_round")
	cmd.Flags().StringVar(&sig, "signature", "", "only this transaction")
	cmd.Flags().IntVar(&limit, "limit", txlog.DefaultListLimit, "maximum entries")
	return cmd
}
