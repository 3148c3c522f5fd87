package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"commentdm/internal/config"
	"commentdm/internal/graph"
	"commentdm/internal/history"
	"commentdm/internal/replier"
	"commentdm/internal/security"
	"commentdm/internal/server"
	"commentdm/internal/store"

	"github.com/spf13/cobra"
)

// ShutdownTimeout bounds how long in-flight requests and batches may run
// after a stop signal
const ShutdownTimeout = 30 * time.Second

var (
	serveLogFile   string
	serveDBPath    string
	serveStatePath string
	serveHost      string
	servePort      int
	testMode       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server that receives Instagram comment webhooks.

Every new commenter receives the configured reply as a private message, once per
post. The admin page is served at /admin?password=ADMIN_PASSWORD.

Settings are read from commentdm.yaml, then .env, then the environment; flags
given here override all of them.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveLogFile, "log", "", "Path to log file (default ./commentdm.log)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "Path to SQLite activity archive (disabled when empty)")
	serveCmd.Flags().StringVar(&serveStatePath, "state", "", "Path to JSON state file (default ./data.json)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default 0.0.0.0)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default 3000)")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("COMMENTDM_TEST_MODE") == "1", "Enable test mode (no rate limiting)")
}

// applyServeFlags overrides config values with flags given on the command line
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log") {
		cfg.LogFile = serveLogFile
	}
	if flags.Changed("db") {
		cfg.DBPath = serveDBPath
	}
	if flags.Changed("state") {
		cfg.StatePath = serveStatePath
	}
	if flags.Changed("host") {
		cfg.Host = serveHost
	}
	if flags.Changed("port") {
		cfg.Port = servePort
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)

	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", strings.Join(errs, "\n"))
	}

	// Set up logging
	logger, logFileHandle, err := setupLogging(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting commentdm", "version", version)
	if cfg.Source != "" {
		logger.Info("Loaded configuration file", "config", cfg.Source)
	}

	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	// Initialize activity archive
	var hist *history.History
	var archive store.Archive
	if cfg.DBPath != "" {
		logger.Info("Initializing activity archive", "db", cfg.DBPath)
		hist, err = history.NewHistory(cfg.DBPath)
		if err != nil {
			logger.Error("Failed to initialize activity archive", "error", err)
			return fmt.Errorf("failed to initialize activity archive: %w", err)
		}
		archive = hist
	}

	logger.Info("Loading state", "state", cfg.StatePath)
	st, err := store.Open(cfg.StatePath, archive, logger)
	if err != nil {
		logger.Error("Failed to load state", "error", err)
		if hist != nil {
			hist.Close()
		}
		return fmt.Errorf("failed to load state: %w", err)
	}

	stats := st.Stats()
	logger.Info("State loaded", "sent_count", stats.SentCount, "log_count", stats.LogCount)

	client := graph.NewClient(cfg.GraphBaseURL, cfg.PageAccessToken, cfg.GraphTimeout)
	proc := replier.NewProcessor(st, client, cfg.Object, logger)
	srv := server.NewServer(cfg, st, proc, hist, logger, testMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", "error", err)
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down", "timeout", ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("Shutdown failed", "error", err)
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("Stopped")
	return nil
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	// Create log directory if needed
	logDir := filepath.Dir(logPath)
	if err := security.CreateSecureDir(logDir, security.PermDirectory); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file with secure permissions
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create multi-writer to log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)

	// Create JSON handler for structured logging
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	logger := slog.New(handler)

	return logger, file, nil
}
