// Package main provides the entry point for the homework analysis worker, API server and tools.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/royengg/homeworkai/internal/config"
	"github.com/royengg/homeworkai/internal/db"
	"github.com/royengg/homeworkai/internal/observability"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "homeworkai",
	Short: "Homework and assignment analysis pipeline",
	Long: `homeworkai turns parsed homework and assignment documents into structured answers
and long-form write-ups using a chain of LLM models, driven by a durable PostgreSQL job queue.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default ./homeworkai.yaml if present)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every database-backed command starts from
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *db.DB
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func connect(ctx context.Context) (*env, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, db: database}, nil
}
