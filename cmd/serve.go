package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/recall/api"
	"github.com/koopa0/recall/internal/app"
	"github.com/koopa0/recall/internal/config"
	"github.com/koopa0/recall/internal/log"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// logLevel maps RECALL_LOG_LEVEL to a slog level, defaulting to info.
func logLevel() slog.Level {
	switch os.Getenv("RECALL_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// runServe initializes the application and serves HTTP until SIGINT or
// SIGTERM.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: logLevel(), JSON: true})
	logger.Info("starting recall", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), api.ShutdownTimeout)
		defer closeCancel()
		a.Close(closeCtx)
	}()

	addr := cfg.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	return a.Server.Run(ctx, addr)
}
