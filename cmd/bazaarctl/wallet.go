package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	starbazaar "github.com/starbazaar/starbazaar-go"
	"github.com/starbazaar/starbazaar-go/session"
	"github.com/starbazaar/starbazaar-go/wallet"
)

var (
	walletLabel  string
	balanceAsset string
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage marketplace wallets",
}

var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate a key, register it with the backend, and save it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := wallet.Generate()
		if err != nil {
			return err
		}
		return registerAndSave(cmd, key)
	},
}

var walletImportCmd = &cobra.Command{
	Use:   "import <hex-private-key>",
	Short: "Import an existing key and register its address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := wallet.Import(args[0])
		if err != nil {
			return err
		}
		return registerAndSave(cmd, key)
	},
}

var walletBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the active wallet's balance",
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

		balance, err := svc.Backend().GetBalance(cmd.Context(), address,
			starbazaar.Asset(strings.ToUpper(balanceAsset)))
		if err != nil {
			return err
		}
		return printJSON(balance)
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered wallets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := newService()
		if err != nil {
			return err
		}
		defer store.Close()

		wallets, err := svc.Backend().GetWallets(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(wallets)
	},
}

func registerAndSave(cmd *cobra.Command, key *wallet.Key) error {
	svc, store, err := newService()
	if err != nil {
		return err
	}
	defer store.Close()

	registered, err := svc.RegisterLocalWallet(cmd.Context(), key, walletLabel)
	if err != nil {
		return err
	}

	keyPath := filepath.Join(homeDir, "wallet.key")
	if err := os.WriteFile(keyPath, []byte(key.Export()), 0o600); err != nil {
		return fmt.Errorf("save key: %w", err)
	}

	fmt.Printf("wallet %s registered, key saved to %s\n", registered.Address, keyPath)
	return nil
}

func init() {
	walletCreateCmd.Flags().StringVar(&walletLabel, "label", "main", "wallet label")
	walletImportCmd.Flags().StringVar(&walletLabel, "label", "main", "wallet label")
	walletBalanceCmd.Flags().StringVar(&balanceAsset, "asset", "TON", "asset symbol")

	walletCmd.AddCommand(walletCreateCmd)
	walletCmd.AddCommand(walletImportCmd)
	walletCmd.AddCommand(walletBalanceCmd)
	walletCmd.AddCommand(walletListCmd)
}
