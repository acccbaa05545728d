package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aet-hub/aet-hub/internal/infrastructure/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|status|version|redo|reset]",
	Short: "Run database migrations",
	Args:  cobra.MatchAll(cobra.MaximumNArgs(2), validMigrateCommand),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := "up"
		var rest []string
		if len(args) > 0 {
			command = args[0]
			rest = args[1:]
		}
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := postgres.Migrate(cmd.Context(), pool, command, rest...); err != nil {
			return err
		}
		logger.Info().Str("command", command).Msg("migration finished")
		return nil
	},
}

var migrateCommands = map[string]struct{}{
	"up": {}, "up-by-one": {}, "up-to": {}, "down": {}, "down-to": {},
	"status": {}, "version": {}, "redo": {}, "reset": {},
}

func validMigrateCommand(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if _, ok := migrateCommands[args[0]]; !ok {
		return fmt.Errorf("unknown migrate command %q", args[0])
	}
	return nil
}
