package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"snpublisher/pkg/auth"
	"snpublisher/pkg/config"
	"snpublisher/pkg/instagram"
	"snpublisher/pkg/logger"
	"snpublisher/pkg/proxy"
	"snpublisher/pkg/publisher"
	"snpublisher/pkg/session"
	"snpublisher/pkg/store"
)

var (
	accountName  string
	databasePath string
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish all due content from the queue",
	Long: `Process every pending content item whose publish time has passed.

Before each item the session is validated: the proxy is rotated when due,
its egress location is verified, and the platform session is probed. A
degraded session is retried; a failed session (challenge, rate limit,
automation detection) halts the run immediately.

Interrupting with Ctrl-C aborts the inter-item delay and stops cleanly.`,
	Example: `  # Publish due content with default settings
  snpublisher publish

  # Use a specific stored account and database
  snpublisher publish --account myaccount --database data/myaccount.db`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
	publishCmd.Flags().StringVar(&databasePath, "database", "", "content queue database path")
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	if databasePath != "" {
		cfg.Storage.DatabasePath = databasePath
	}
	if err := resolveCredentials(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open content queue: %w", err)
	}
	defer queue.Close()

	pool, err := proxy.NewPool(&cfg.Proxy, nil, log)
	if err != nil {
		return fmt.Errorf("failed to build proxy pool: %w", err)
	}

	client, err := instagram.NewClient(cfg.Account, 30*time.Second, log)
	if err != nil {
		return fmt.Errorf("failed to build platform client: %w", err)
	}

	guard := session.NewGuard(client, pool, log)
	pub := publisher.New(queue, client, guard, &cfg.Publisher, log)

	log.WithField("account", cfg.Account.Username).Info("starting publishing run")

	if err := pub.Run(ctx); err != nil {
		if err == publisher.ErrSessionFailed {
			log.Error("run halted: session requires human intervention")
		}
		return err
	}

	log.Info("publishing run completed")
	return nil
}

// loadConfigAndLogger loads configuration and initializes the global logger
func loadConfigAndLogger() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.GetLogger(), nil
}

// resolveCredentials fills account credentials from the credential store
// when the config does not carry them.
func resolveCredentials(cfg *config.Config) error {
	if cfg.Account.Username != "" && cfg.Account.Password != "" {
		if cfg.Account.ID == "" {
			cfg.Account.ID = cfg.Account.Username
		}
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	lookup := accountName
	if lookup == "" {
		lookup = cfg.Account.Username
	}
	if lookup == "" {
		accounts, err := manager.List()
		if err != nil || len(accounts) == 0 {
			return fmt.Errorf("no credentials configured: run 'snpublisher auth login' first")
		}
		lookup = accounts[0].Username
	}

	account, err := manager.Retrieve(lookup)
	if err != nil {
		return fmt.Errorf("no stored credentials for %q: %w", lookup, err)
	}

	cfg.Account.Username = account.Username
	cfg.Account.Password = account.Password
	if account.UserAgent != "" {
		cfg.Account.UserAgent = account.UserAgent
	}
	if cfg.Account.ID == "" {
		cfg.Account.ID = account.Username
	}
	return nil
}
