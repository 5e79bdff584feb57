package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	starbazaar "github.com/starbazaar/starbazaar-go"
	"github.com/starbazaar/starbazaar-go/api"
	"github.com/starbazaar/starbazaar-go/cache"
	"github.com/starbazaar/starbazaar-go/internal/logger"
	"github.com/starbazaar/starbazaar-go/session"
)

var (
	apiURL   string
	homeDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "bazaarctl",
	Short: "StarBazaar marketplace client",
	Long: `bazaarctl talks to a StarBazaar marketplace backend: browse and
create listings, manage wallets, run deposits and Stars invoices and wait
for them to confirm.

The session token and active wallet persist under --home between runs.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url",
		envOr("BAZAAR_API_URL", "http://localhost:8080"), "backend base URL")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home",
		envOr("BAZAAR_HOME", defaultHome()), "state directory for session and keys")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"log level (debug, info, warn, error)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(listingsCmd)
	rootCmd.AddCommand(depositCmd)
	rootCmd.AddCommand(invoiceCmd)
	rootCmd.AddCommand(starsCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bazaarctl"
	}
	return filepath.Join(home, ".bazaarctl")
}

// newService wires the full client stack: badger-backed session store,
// cached API client, and the service with its poller and bus. The caller
// must Close the returned store.
func newService() (*starbazaar.Service, session.Store, error) {
	log := logger.New(logLevel)

	if err := os.MkdirAll(homeDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}
	store, err := session.OpenBadger(filepath.Join(homeDir, "session"))
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}

	client := api.NewClient(&api.Config{
		BaseURL: apiURL,
		Cache:   cache.New(cache.WithValidator(api.CacheValidator()), cache.WithLogger(log)),
		Logger:  log,
	})
	if token := os.Getenv("BAZAAR_TOKEN"); token != "" {
		client.SetToken(token)
	}

	svc := starbazaar.NewService(client,
		starbazaar.WithSessionStore(store),
		starbazaar.WithLogger(log),
	)
	if os.Getenv("BAZAAR_TOKEN") == "" {
		if _, err := svc.RestoreSession(); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	return svc, store, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var loginCmd = &cobra.Command{
	Use:   "login <initData>",
	Short: "Authenticate with Telegram WebApp initData",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := newService()
		if err != nil {
			return err
		}
		defer store.Close()

		resp, err := svc.Login(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s\n", resp.User.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := newService()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := svc.Logout(); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil
	},
}
