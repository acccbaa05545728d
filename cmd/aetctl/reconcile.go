package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/aet-hub/aet-hub/internal/application/ledger"
	"github.com/aet-hub/aet-hub/internal/infrastructure/postgres"
	"github.com/aet-hub/aet-hub/internal/infrastructure/redislock"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile-ledger",
	Short: "Expire lapsed permits and re-sync the issued-license ledger from approved states",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		vehicles := postgres.NewVehicleRepository(pool)
		ledgerRepo := postgres.NewLedgerRepository(pool)
		params := ledger.ReconcilerParams{
			Licenses: postgres.NewLicenseRepository(pool),
			Ledger:   ledgerRepo,
			Syncer:   ledger.NewSyncer(ledgerRepo, vehicles, logger),
			Logger:   logger,
		}
		if cfg.RedisURL != "" {
			client, err := redislock.Dial(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()
			lock, err := redislock.New(client, redislock.Key(ledger.ReconcileJobName), 0)
			if err != nil {
				return err
			}
			params.Lock = lock
		}
		reconciler, err := ledger.NewReconciler(params)
		if err != nil {
			return err
		}

		result, runErr := reconciler.Run(ctx)
		for _, e := range multierr.Errors(runErr) {
			logger.Error().Err(e).Msg("reconcile error")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		return runErr
	},
}
