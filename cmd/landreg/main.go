package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LandRegistry/internal/digest"
	"github.com/jmerrifield20/LandRegistry/internal/identity"
	"github.com/jmerrifield20/LandRegistry/internal/model"
	"github.com/jmerrifield20/LandRegistry/internal/registry"
	"github.com/jmerrifield20/LandRegistry/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile      string
	ledgerURL    string
	account      string
	token        string
	outputFormat string
	debug        bool

	logger = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "landreg",
	Short: "Land registry ledger client",
	Long: `landreg is the command-line client for a land-registry ledger node.

Submitters upload supporting media and register land records; officers
review pending records; the admin grants roles and sets how many matching
votes finalise a record. Every view is rebuilt from the ledger.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".landreg"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("landreg")
		viper.AutomaticEnv()
		viper.SetDefault("ledger_url", "http://localhost:8080")
		viper.SetDefault("digest", string(digest.SHA256))
		viper.SetDefault("fetch_concurrency", registry.DefaultFetchConcurrency)
		viper.SetDefault("timeout", "10s")
		if err := viper.ReadInConfig(); err != nil {
			var cfgNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &cfgNotFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}

		if ledgerURL == "" {
			ledgerURL = viper.GetString("ledger_url")
		}
		if account == "" {
			account = viper.GetString("account")
		}
		if token == "" {
			token = viper.GetString("token")
		}
		if outputFormat != "text" && outputFormat != "json" {
			return fmt.Errorf("--format must be text or json, got %q", outputFormat)
		}
		if debug {
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			logger = l
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.landreg/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ledgerURL, "ledger", "", "ledger node URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&account, "account", "", "ledger account to act as")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "account token issued by the node operator")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "output format: text or json")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log diagnostics to stderr")

	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(verifyMediaCmd)
	rootCmd.AddCommand(actionableCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(grantOfficerCmd)
	rootCmd.AddCommand(grantSubmitterCmd)
	rootCmd.AddCommand(setThresholdCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// dial connects to the configured node.
func dial(ctx context.Context) (*client.Client, error) {
	timeout, err := time.ParseDuration(viper.GetString("timeout"))
	if err != nil {
		return nil, fmt.Errorf("parse timeout: %w", err)
	}
	opts := []client.Option{client.WithTimeout(timeout), client.WithLogger(logger)}
	if token != "" {
		opts = append(opts, client.WithToken(token))
	}
	return client.Dial(ctx, ledgerURL, opts...)
}

// openSession dials the node and opens a session for --account. The caller
// must Close the returned client.
func openSession(ctx context.Context) (registry.Session, *client.Client, error) {
	if strings.TrimSpace(account) == "" {
		return nil, nil, errors.New("no account configured (use --account or set account in ~/.landreg/config.yaml)")
	}
	c, err := dial(ctx)
	if err != nil {
		return nil, nil, err
	}

	hasher, err := digest.New(digest.Algorithm(viper.GetString("digest")))
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	svc := registry.New(c, hasher, logger)
	svc.SetBlobStore(c)
	svc.SetFetchConcurrency(viper.GetInt("fetch_concurrency"))

	s, err := registry.Open(ctx, svc, account)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	logger.Debug("session opened",
		zap.String("account", s.Actor()), zap.Stringer("capability", s.Capability()))
	return s, c, nil
}

// requireRole reports a capability mismatch before any ledger write is attempted.
func requireRole(s registry.Session, want model.Capability) error {
	return fmt.Errorf("account %s has role %q, %s required: %w",
		s.Actor(), s.Capability().Label(), want.Label(), model.ErrNotAuthorized)
}

// ── token ────────────────────────────────────────────────────────────────────

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <account>",
	Short: "Issue an account token (node operators only)",
	Long: `Issue an account token signed with the node's token secret.

The secret is read from token_secret in the config file or LANDREG_TOKEN_SECRET
and must match the node's auth.token_secret.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := viper.GetString("token_secret")
		if secret == "" {
			return errors.New("token_secret is not configured")
		}
		issuer, err := identity.NewAccountTokenIssuer([]byte(secret), "ledgerd", tokenTTL)
		if err != nil {
			return err
		}
		acct, err := model.NormalizeAccount(args[0])
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(acct)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(map[string]any{"account": acct, "token": tok, "expires_in": int(tokenTTL.Seconds())})
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the landreg version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("landreg %s\n", version)
	},
}
