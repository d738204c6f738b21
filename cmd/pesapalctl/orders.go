package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"enkaji-payments/config"
	"enkaji-payments/internal/auth"
	"enkaji-payments/internal/models"
	"enkaji-payments/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg := config.Load()
	s, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func seedOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-order",
		Short: "Create a PENDING order to pay against in a sandbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			amount, _ := cmd.Flags().GetString("amount")
			email, _ := cmd.Flags().GetString("email")
			phone, _ := cmd.Flags().GetString("phone")
			id, _ := cmd.Flags().GetString("id")

			total, err := decimal.NewFromString(amount)
			if err != nil || !total.IsPositive() {
				return fmt.Errorf("invalid amount %q", amount)
			}
			if id == "" {
				id = "ORD-" + strings.ToUpper(uuid.New().String()[:8])
			}

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			order := &models.Order{
				ID:            id,
				UserID:        userID,
				TotalAmount:   total,
				Currency:      "KES",
				CustomerEmail: email,
				CustomerPhone: phone,
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := s.CreateOrder(ctx, order); err != nil {
				return err
			}
			fmt.Printf("Created order %s for %s (%s %s)\n", order.ID, order.UserID, order.TotalAmount.StringFixed(2), order.Currency)
			return nil
		},
	}

	cmd.Flags().String("id", "", "Order id (generated when empty)")
	cmd.Flags().StringP("user", "u", "", "Owning user id")
	cmd.Flags().StringP("amount", "a", "100.00", "Order total")
	cmd.Flags().String("email", "buyer@example.co.ke", "Customer email")
	cmd.Flags().String("phone", "", "Customer phone")
	cmd.Flags().Duration("timeout", 30*time.Second, "Database timeout")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List a user's orders with their payment state",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()
			orders, err := s.GetOrdersByUserID(ctx, userID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTOTAL\tSTATUS\tPAYMENT\tCREATED")
			for _, o := range orders {
				fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%s\n",
					o.ID, o.TotalAmount.StringFixed(2), o.Currency, o.Status, o.PaymentStatus,
					o.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringP("user", "u", "", "User id")
	cmd.Flags().Duration("timeout", 30*time.Second, "Database timeout")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a short-lived bearer token with the shared secret (sandbox only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("AUTH_JWT_SECRET is empty")
			}
			userID, _ := cmd.Flags().GetString("user")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			now := time.Now()
			tok, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Sign(auth.Claims{
				Roles: roles,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   userID,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			})
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().StringP("user", "u", "", "Subject user id")
	cmd.Flags().StringSlice("role", []string{auth.RoleBuyer}, "Roles to grant")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
