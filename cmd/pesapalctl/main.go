package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"enkaji-payments/config"
	"enkaji-payments/internal/pesapal"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "pesapalctl",
		Short:   "Operate the Enkaji Pesapal integration",
		Version: Version,
	}

	rootCmd.AddCommand(registerIPNCmd())
	rootCmd.AddCommand(listIPNCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(seedOrderCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newPesapalClient(cfg *config.Config) *pesapal.Client {
	return pesapal.NewClient(cfg.Pesapal.BaseURL, cfg.Pesapal.ConsumerKey, cfg.Pesapal.ConsumerSecret, cfg.Pesapal.Timeout)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func registerIPNCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register-ipn [url]",
		Short: "Register the webhook URL with Pesapal and print its notification id",
		Long: `Registers the POST /payment/callback URL with Pesapal. The returned
ipn_id goes into PESAPAL_IPN_ID. Defaults to PESAPAL_CALLBACK_URL.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ipnURL := cfg.Pesapal.CallbackURL
			if len(args) == 1 {
				ipnURL = args[0]
			}
			if ipnURL == "" {
				return fmt.Errorf("no URL given and PESAPAL_CALLBACK_URL is empty")
			}
			notificationType, _ := cmd.Flags().GetString("type")

			ctx, cancel := commandContext(cmd)
			defer cancel()

			reg, err := newPesapalClient(cfg).RegisterIPN(ctx, ipnURL, notificationType)
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s\n", reg.URL)
			fmt.Printf("PESAPAL_IPN_ID=%s\n", reg.IPNID)
			return nil
		},
	}

	cmd.Flags().StringP("type", "t", "POST", "Notification type (GET or POST)")
	cmd.Flags().Duration("timeout", 30*time.Second, "Request timeout")
	return cmd
}

func listIPNCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-ipn",
		Short: "List the notification URLs registered for this merchant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx, cancel := commandContext(cmd)
			defer cancel()

			regs, err := newPesapalClient(cfg).ListIPNs(ctx)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return printJSON(regs)
			}
			for _, r := range regs {
				marker := " "
				if r.IPNID == cfg.Pesapal.NotificationID {
					marker = "*"
				}
				fmt.Printf("%s %s  %-4s  %s\n", marker, r.IPNID, r.IPNNotificationType, r.URL)
			}
			return nil
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cmd.Flags().Duration("timeout", 30*time.Second, "Request timeout")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [orderTrackingId]",
		Short: "Query Pesapal for a transaction's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx, cancel := commandContext(cmd)
			defer cancel()

			st, err := newPesapalClient(cfg).GetTransactionStatus(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}

	cmd.Flags().Duration("timeout", 30*time.Second, "Request timeout")
	return cmd
}
