package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/subtrack/pkg/billing/stripe/stripetest"
)

func newSignCmd() *cobra.Command {
	var (
		secret  string
		session string
		ref     string
		email   string
		out     string
	)

	cmd := &cobra.Command{
		Use:   "sign [payload-file]",
		Short: "Sign a webhook payload for local testing",
		Long: "Print a Stripe-Signature header value for a payload read from a file\n" +
			"or stdin. With --session a checkout.session.completed payload is\n" +
			"generated and written to --out instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, _, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				secret = cfg.Stripe.WebhookSecret.Unmask()
			}
			if secret == "" {
				return errors.New("no signing secret: pass --secret or set STRIPE_WEBHOOK_SECRET")
			}

			var payload []byte
			switch {
			case session != "":
				payload = stripetest.CheckoutCompleted(session, ref, email)
				if err := os.WriteFile(out, payload, 0o600); err != nil {
					return fmt.Errorf("write payload: %w", err)
				}
			case len(args) == 1:
				b, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				payload = b
			default:
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				payload = b
			}

			fmt.Fprintln(cmd.OutOrStdout(), stripetest.SignAt(payload, secret, time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "webhook signing secret (default $STRIPE_WEBHOOK_SECRET)")
	cmd.Flags().StringVar(&session, "session", "", "generate a checkout completion with this session id")
	cmd.Flags().StringVar(&ref, "ref", "", "client_reference_id of the generated event")
	cmd.Flags().StringVar(&email, "email", "", "customer_email of the generated event")
	cmd.Flags().StringVar(&out, "out", "event.json", "where to write the generated payload")
	return cmd
}
