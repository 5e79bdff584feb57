package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	starbazaar "github.com/starbazaar/starbazaar-go"
	"github.com/starbazaar/starbazaar-go/poll"
	"github.com/starbazaar/starbazaar-go/session"
)

var (
	depositAmount int64
	depositAsset  string
	depositWait   bool

	invoiceAmount int64
	invoiceWait   bool

	waitInterval time.Duration
	waitAttempts int
)

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Create a deposit and optionally wait for confirmation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := newService()
		if err != nil {
			return err
		}
		defer store.Close()

		address, err := store.Get(session.KeyActiveWallet)
		if err != nil {
			return fmt.Errorf("no active wallet, run 'bazaarctl wallet create' first")
		}

		payment, err := svc.Backend().CreateDeposit(cmd.Context(), starbazaar.PaymentRequest{
			Address: address,
			Asset:   starbazaar.Asset(strings.ToUpper(depositAsset)),
			Amount:  depositAmount,
		})
		if err != nil {
			return err
		}
		fmt.Printf("deposit %s created (%s)\n", payment.ID, payment.Status)

		if !depositWait {
			return nil
		}
		return waitFor(cmd, svc.ConfirmDeposit(cmd.Context(), payment.ID,
			poll.WithInterval(waitInterval), poll.WithMaxAttempts(waitAttempts)))
	},
}

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Create a Stars invoice and optionally wait for payment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := newService()
		if err != nil {
			return err
		}
		defer store.Close()

		invoice, err := svc.Backend().CreateStarsInvoice(cmd.Context(), invoiceAmount)
		if err != nil {
			return err
		}
		fmt.Printf("invoice %s created, pay at %s\n", invoice.ID, invoice.Link)

		if !invoiceWait {
			return nil
		}
		return waitFor(cmd, svc.ConfirmStarsInvoice(cmd.Context(), invoice.ID,
			poll.WithInterval(waitInterval), poll.WithMaxAttempts(waitAttempts)))
	},
}

var starsCmd = &cobra.Command{
	Use:   "stars",
	Short: "Show the Stars balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := newService()
		if err != nil {
			return err
		}
		defer store.Close()

		amount, err := svc.Backend().GetStarsBalance(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%d stars\n", amount)
		return nil
	},
}

func waitFor(cmd *cobra.Command, s *poll.Session) error {
	status, err := s.Wait(cmd.Context())
	if err != nil {
		return err
	}
	switch status {
	case poll.StatusSucceeded:
		fmt.Println("confirmed")
		return nil
	case poll.StatusTimedOut:
		return fmt.Errorf("still pending after %d checks, try again later", waitAttempts)
	default:
		return fmt.Errorf("confirmation ended with status %s", status)
	}
}

func init() {
	depositCmd.Flags().Int64Var(&depositAmount, "amount", 0, "amount in minor units")
	depositCmd.Flags().StringVar(&depositAsset, "asset", "TON", "asset symbol")
	depositCmd.Flags().BoolVar(&depositWait, "wait", false, "poll until the deposit confirms")
	depositCmd.MarkFlagRequired("amount")

	invoiceCmd.Flags().Int64Var(&invoiceAmount, "amount", 0, "invoice amount in Stars")
	invoiceCmd.Flags().BoolVar(&invoiceWait, "wait", false, "poll until the invoice is paid")
	invoiceCmd.MarkFlagRequired("amount")

	for _, c := range []*cobra.Command{depositCmd, invoiceCmd} {
		c.Flags().DurationVar(&waitInterval, "poll-interval", poll.DefaultInterval,
			"delay between status checks when waiting")
		c.Flags().IntVar(&waitAttempts, "poll-attempts", poll.DefaultMaxAttempts,
			"maximum status checks before giving up")
	}
}
