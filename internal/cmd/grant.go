package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
	zerologadapter "github.com/mihaimyh/subtrack/pkg/entitlement/logger/zerolog"
)

func newGrantCmd() *cobra.Command {
	var id, email string

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant lifetime access by hand, as a confirmed checkout would",
		Long: "Grant lifetime access to the account with the given id, or to every\n" +
			"account with the given email. Granting twice is harmless.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(id) == "" && strings.TrimSpace(email) == "" {
				return errors.New("one of --id or --email is required")
			}

			sess, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.close() }()

			applier, err := entitlement.NewApplier(sess.store, entitlement.ApplierConfig{
				Logger:         zerologadapter.NewLogger(sess.log),
				NormalizeEmail: sess.cfg.Stripe.NormalizeEmail,
			})
			if err != nil {
				return err
			}

			res, err := applier.Apply(cmd.Context(), &entitlement.PaymentEvent{
				Kind:       entitlement.KindCheckoutCompleted,
				SessionID:  "manual",
				AccountRef: id,
				Email:      email,
			})
			switch {
			case errors.Is(err, entitlement.ErrNoAccountMatched):
				return fmt.Errorf("no account matched %s", res.Match)
			case err != nil:
				return err
			}

			out := cmd.OutOrStdout()
			for _, acct := range res.AccountIDs {
				fmt.Fprintln(out, acct)
			}
			fmt.Fprintf(out, "matched=%d newly_granted=%d\n", res.Matched, res.NewlyGranted)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "account id (wins over --email)")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <account-id>",
		Short: "Print whether an account has lifetime access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.close() }()

			acct, err := sess.store.GetAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\temail=%s\thas_lifetime_access=%t\n",
				acct.ID, acct.Email, acct.HasLifetimeAccess)
			return nil
		},
	}
}

func newAccountCmd() *cobra.Command {
	account := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts in the configured store",
	}

	var id, email string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create or update an account; an existing grant is kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(id) == "" {
				return errors.New("--id is required")
			}

			sess, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.close() }()

			w, ok := sess.store.(entitlement.AccountWriter)
			if !ok {
				return fmt.Errorf("store %T cannot create accounts", sess.store)
			}
			if err := w.PutAccount(cmd.Context(), entitlement.Account{ID: id, Email: email}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	add.Flags().StringVar(&id, "id", "", "account id")
	add.Flags().StringVar(&email, "email", "", "account email")

	account.AddCommand(add)
	return account
}
