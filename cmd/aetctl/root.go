package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aet-hub/aet-hub/internal/config"
	"github.com/aet-hub/aet-hub/internal/infrastructure/postgres"
)

var (
	cfg     *config.Config
	logger  zerolog.Logger
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "aetctl",
	Short:         "Operational tasks for the AET permit service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(migrateCmd, reconcileCmd)
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.DBDriver != config.DriverPostgres {
		return nil, fmt.Errorf("%s requires the postgres driver, got %q", rootCmd.Name(), cfg.DBDriver)
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
