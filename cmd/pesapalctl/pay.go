package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"enkaji-payments/internal/checkout"

	"github.com/spf13/cobra"
)

func payCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay [orderId]",
		Short: "Walk through the checkout payment form for an order",
		Long: `Runs the payment form against a running API: choose a method, enter a
phone number for MPESA or AIRTEL, submit, then wait for the outcome.
Missing --method and --phone values are prompted for on stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: runPay,
	}

	cmd.Flags().String("api", "http://localhost:8080", "Payment API base URL")
	cmd.Flags().String("token", os.Getenv("ENKAJI_TOKEN"), "Bearer token issued by the identity provider")
	cmd.Flags().StringP("method", "m", "", "Payment method (CARD, MPESA, AIRTEL, BANK)")
	cmd.Flags().StringP("phone", "p", "", "Mobile money phone number")
	cmd.Flags().String("currency", "KES", "Currency")
	cmd.Flags().Bool("wait", true, "Poll the order until it is PAID or FAILED")
	cmd.Flags().Duration("timeout", 5*time.Minute, "How long to wait for the outcome")
	return cmd
}

func runPay(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api")
	token, _ := cmd.Flags().GetString("token")
	method, _ := cmd.Flags().GetString("method")
	phone, _ := cmd.Flags().GetString("phone")
	currency, _ := cmd.Flags().GetString("currency")
	wait, _ := cmd.Flags().GetBool("wait")

	client := checkout.NewClient(apiURL, token, 60*time.Second)
	form := checkout.NewForm(args[0], currency, client)
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	for form.Step() != checkout.StepComplete {
		switch form.Step() {
		case checkout.StepMethod:
			if form.CanSubmit() {
				break
			}
			if method == "" {
				var err error
				if method, err = prompt(in, out, form.Message()); err != nil {
					return err
				}
			}
			if err := form.SelectMethod(method); err != nil {
				fmt.Fprintln(out, err)
				method = ""
			}
			continue

		case checkout.StepPhone:
			if form.CanSubmit() {
				break
			}
			if phone == "" {
				var err error
				if phone, err = prompt(in, out, form.Message()); err != nil {
					return err
				}
			}
			if err := form.EnterPhone(phone); err != nil {
				fmt.Fprintln(out, err)
				phone = ""
			}
			continue

		case checkout.StepError:
			fmt.Fprintln(out, form.Message())
			answer, err := prompt(in, out, "Retry? [y/N]")
			if err != nil || !strings.EqualFold(answer, "y") {
				return form.Err()
			}
			if err := form.Retry(); err != nil {
				return err
			}
			continue
		}

		fmt.Fprintln(out, "Processing payment...")
		if _, err := form.Submit(cmd.Context()); err != nil {
			var apiErr *checkout.APIError
			if errors.As(err, &apiErr) && apiErr.Retryable {
				fmt.Fprintln(out, "The processor is busy; you can retry safely.")
			}
		}
	}

	fmt.Fprintln(out, form.Message())
	if !wait {
		return nil
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	st, err := checkout.WaitForOutcome(ctx, client, args[0], 5*time.Second)
	if err != nil {
		return fmt.Errorf("waiting for payment outcome: %w", err)
	}
	fmt.Fprintf(out, "Order %s: %s / %s\n", st.OrderID, st.OrderStatus, st.PaymentStatus)
	return nil
}

func prompt(in *bufio.Reader, out io.Writer, question string) (string, error) {
	fmt.Fprintf(out, "%s: ", question)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
