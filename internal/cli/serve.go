package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xerolink/xerolink/internal/alerts"
	"github.com/xerolink/xerolink/internal/api"
	"github.com/xerolink/xerolink/internal/config"
	"github.com/xerolink/xerolink/internal/logging"
	"github.com/xerolink/xerolink/internal/metrics"
	"github.com/xerolink/xerolink/internal/reports"
	"github.com/xerolink/xerolink/internal/secrets"
	"github.com/xerolink/xerolink/internal/store"
	"github.com/xerolink/xerolink/internal/xero"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the XeroLink server",
	Long: `Start the XeroLink HTTP server.

The server exposes the company-scoped Xero integration API: OAuth
connection management, cached data fetching, and BAS/FAS report
assembly.

Example:
  xerolink serve --config config.yaml --db ./data/xerolink.db`,
	RunE: runServe,
}

var serveFlags struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", 0, "Shutdown timeout (overrides config)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Apply CLI flags to config
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.Timeout != 0 {
		cfg.Server.ShutdownTimeout = serveFlags.Timeout
	}
	dbPath := cfg.Database.Path
	if RootCmd.PersistentFlags().Changed("db") {
		dbPath = globalFlags.DBPath
	}

	level := logging.LevelInfo
	if cfg.Server.LogLevel != "" {
		level = logging.Level(cfg.Server.LogLevel)
	}
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.WithLevel(level))

	box, err := secrets.NewBox(cfg.Xero.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize secret encryption: %w", err)
	}
	if !box.Enabled() {
		logger.Warn("no encryption key configured, secrets stored in plaintext")
	}

	sqliteStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite store: %w", err)
	}
	logger.Info("database initialized", "path", dbPath)

	notifier, err := buildNotifier(cfg.Alerts, logger)
	if err != nil {
		logger.Warn("alerts disabled", "error", err.Error())
		notifier = alerts.NewNotifier(nil, 0, logger)
	}

	m := metrics.NewMetrics("xerolink")
	client := xero.NewClient(cfg.Xero, m, logger)
	tokens := xero.NewTokenManager(cfg.Xero, sqliteStore, box, client, m, logger, notifier)
	fetcher := xero.NewFetcher(client, tokens, sqliteStore, cfg.Cache, m, logger)
	assembler := reports.NewAssembler(fetcher, logger)

	server := api.NewServer(cfg.Server, cfg.API, sqliteStore, tokens, fetcher, assembler, m, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader.SetOnChange(func(updated *config.Config) {
		logger.Info("configuration reloaded", "path", globalFlags.Config)
	})
	go func() {
		if err := loader.Watch(ctx); err != nil {
			logger.Warn("config watch stopped", "error", err.Error())
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// buildNotifier creates the refresh-failure notifier from alert config.
func buildNotifier(cfg config.AlertsConfig, logger *logging.Logger) (*alerts.Notifier, error) {
	if !cfg.Enabled {
		return alerts.NewNotifier(nil, 0, logger), nil
	}

	sender, err := alerts.NewTelegramSender(cfg.BotToken, cfg.ChatID)
	if err != nil {
		return nil, err
	}
	return alerts.NewNotifier(sender, cfg.MinInterval, logger), nil
}
