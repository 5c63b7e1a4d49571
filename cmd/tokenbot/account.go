package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edgard/tokenbot/internal/database"
)

func newAccountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts and token balances",
	}
	cmd.AddCommand(
		newAccountCreateCmd(opts),
		newAccountGrantCmd(opts),
		newAccountShowCmd(opts),
	)
	return cmd
}

func newAccountCreateCmd(opts *rootOptions) *cobra.Command {
	var grant int64
	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Create an account with the starting grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBase(opts)
			if err != nil {
				return err
			}
			defer b.Close()

			if !cmd.Flags().Changed("grant") {
				grant = b.cfg.Ledger.StartingGrant
			}
			acct, err := b.store.CreateAccount(cmd.Context(), args[0], grant)
			if err != nil {
				return err
			}
			printAccount(cmd, acct)
			return nil
		},
	}
	cmd.Flags().Int64Var(&grant, "grant", 0, "starting balance (defaults to ledger.starting_grant)")
	return cmd
}

func newAccountGrantCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <account> <amount>",
		Short: "Add tokens to an account's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer: %q", args[1])
			}

			b, err := openBase(opts)
			if err != nil {
				return err
			}
			defer b.Close()

			acct, err := lookupAccount(cmd, b.store, args[0])
			if err != nil {
				return err
			}
			if err := b.store.IncrementBalance(cmd.Context(), acct.ID, amount); err != nil {
				return err
			}
			acct, err = b.store.GetAccount(cmd.Context(), acct.ID)
			if err != nil {
				return err
			}
			printAccount(cmd, acct)
			return nil
		},
	}
}

func newAccountShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <account>",
		Short: "Show an account by id or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBase(opts)
			if err != nil {
				return err
			}
			defer b.Close()

			acct, err := lookupAccount(cmd, b.store, args[0])
			if err != nil {
				return err
			}
			printAccount(cmd, acct)
			return nil
		},
	}
}

// lookupAccount accepts a numeric id or an email address.
func lookupAccount(cmd *cobra.Command, store database.Store, ref string) (*database.Account, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return store.GetAccount(cmd.Context(), id)
	}
	acct, err := store.GetAccountByEmail(cmd.Context(), ref)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("no account with email %q", ref)
	}
	return acct, err
}

func printAccount(cmd *cobra.Command, acct *database.Account) {
	printf(cmd, "id=%d email=%s balance=%d\n", acct.ID, acct.Email, acct.Balance)
}
