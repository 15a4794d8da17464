package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/programs/counter"
	"github.com/R3E-Network/ledger_client/internal/programs/round"
	"github.com/R3E-Network/ledger_client/internal/programs/username"
)

func counterCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "counter", Short: "Counter program"}
	client := func(cmd *cobra.Command) (*counter.Client, error) {
		a := appFrom(cmd.Context())
		return counter.New(a.manager, a.registry)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create the signer's counter",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client(cmd)
				if err != nil {
					return err
				}
				s, err := appFrom(cmd.Context()).signer(cmd.Context())
				if err != nil {
					return err
				}
				res, err := c.Initialize(cmd.Context(), s)
				if err != nil {
					return err
				}
				printResult(cmd, res)
				return nil
			},
		},
		&cobra.Command{
			Use:   "increment",
			Short: "Increment the signer's counter",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client(cmd)
				if err != nil {
					return err
				}
				s, err := appFrom(cmd.Context()).signer(cmd.Context())
				if err != nil {
					return err
				}
				res, err := c.Increment(cmd.Context(), s)
				if err != nil {
					return err
				}
				printResult(cmd, res)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show [USER]",
			Short: "Show a counter",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client(cmd)
				if err != nil {
					return err
				}
				user, err := appFrom(cmd.Context()).target(cmd.Context(), args)
				if err != nil {
					return err
				}
				count, err := c.GetCount(cmd.Context(), user)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s count=%d\n", c.Address(user), count)
				return nil
			},
		},
	)
	return cmd
}

func roundCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "round", Short: "Round program"}
	client := func(cmd *cobra.Command) (*round.Client, error) {
		a := appFrom(cmd.Context())
		return round.New(a.manager, a.registry)
	}

	var startSlot, in uint64
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the signer's round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			c, err := client(cmd)
			if err != nil {
				return err
			}
			s, err := a.signer(cmd.Context())
			if err != nil {
				return err
			}
			start := startSlot
			if in > 0 {
				slot, err := a.manager.GetSlot(cmd.Context())
				if err != nil {
					return err
				}
				start = slot + in
			}
			if start == 0 {
				return errors.New("pass --start-slot or --in")
			}
			res, err := c.Initialise(cmd.Context(), s, start)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	initCmd.Flags().Uint64Var(&startSlot, "start-slot", 0, "absolute start slot")
	initCmd.Flags().Uint64Var(&in, "in", 0, "start this many slots from now")

	var wait time.Duration
	activate := &cobra.Command{
		Use:   "activate AUTHORITY",
		Short: "Activate a round, paid for by the signer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			c, err := client(cmd)
			if err != nil {
				return err
			}
			authority, err := chain.ParseAddress(args[0])
			if err != nil {
				return err
			}
			s, err := a.signer(cmd.Context())
			if err != nil {
				return err
			}
			if wait > 0 {
				ok, err := c.WaitUntilActivatable(cmd.Context(), authority, wait)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("start slot not reached within %s", wait)
				}
			}
			res, err := c.Activate(cmd.Context(), s, authority)
			if round.Retryable(err) {
				return fmt.Errorf("%w (retry later or pass --wait)", err)
			}
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	activate.Flags().DurationVar(&wait, "wait", 0, "wait up to this long for the start slot")

	complete := &cobra.Command{
		Use:   "complete",
		Short: "Complete the signer's round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			s, err := appFrom(cmd.Context()).signer(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.Complete(cmd.Context(), s)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show [AUTHORITY]",
		Short: "Show a round",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			authority, err := appFrom(cmd.Context()).target(cmd.Context(), args)
			if err != nil {
				return err
			}
			r, err := c.Get(cmd.Context(), authority)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "address:      %s\n", c.Address(authority))
			fmt.Fprintf(w, "status:       %s\n", r.Status())
			fmt.Fprintf(w, "start_slot:   %d\n", r.StartSlot)
			fmt.Fprintf(w, "authority:    %s\n", r.Authority)
			fmt.Fprintf(w, "activated_at: %s\n", optUint(r.ActivatedAt))
			if r.ActivatedBy != nil {
				fmt.Fprintf(w, "activated_by: %s\n", *r.ActivatedBy)
			}
			fmt.Fprintf(w, "completed_at: %s\n", optUint(r.CompletedAt))
			return nil
		},
	}

	cmd.AddCommand(initCmd, activate, complete, show)
	return cmd
}

func optUint(v *uint64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(*v, 10)
}

func usernameCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "username", Short: "Username program"}
	client := func(cmd *cobra.Command) (*username.Client, error) {
		a := appFrom(cmd.Context())
		return username.New(a.manager, a.registry)
	}
	submit := func(update bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if err := username.Validate(args[0]); err != nil {
				return err
			}
			c, err := client(cmd)
			if err != nil {
				return err
			}
			s, err := appFrom(cmd.Context()).signer(cmd.Context())
			if err != nil {
				return err
			}
			var res *chain.TxResult
			if update {
				res, err = c.Update(cmd.Context(), s, args[0])
			} else {
				res, err = c.Initialize(cmd.Context(), s, args[0])
			}
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init NAME",
			Short: "Claim the signer's first username",
			Args:  cobra.ExactArgs(1),
			RunE:  submit(false),
		},
		&cobra.Command{
			Use:   "update NAME",
			Short: "Change the signer's username",
			Args:  cobra.ExactArgs(1),
			RunE:  submit(true),
		},
		&cobra.Command{
			Use:   "show [AUTHORITY]",
			Short: "Show a user account",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client(cmd)
				if err != nil {
					return err
				}
				authority, err := appFrom(cmd.Context()).target(cmd.Context(), args)
				if err != nil {
					return err
				}
				acc, err := c.Get(cmd.Context(), authority)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "username: %s\n", acc.Username)
				fmt.Fprintf(w, "changes:  %d\n", acc.ChangeCount)
				fmt.Fprintf(w, "recent:   %v\n", acc.RecentHistory)
				return nil
			},
		},
		&cobra.Command{
			Use:   "history [AUTHORITY]",
			Short: "List every recorded username change",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client(cmd)
				if err != nil {
					return err
				}
				authority, err := appFrom(cmd.Context()).target(cmd.Context(), args)
				if err != nil {
					return err
				}
				records, err := c.History(cmd.Context(), authority)
				if err != nil {
					return err
				}
				for _, r := range records {
					fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", r.ChangeIndex, r.OldUsername)
				}
				return nil
			},
		},
	)
	return cmd
}
