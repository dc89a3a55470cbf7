package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coollabora/clinical-audit/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		zap.L().Info("migrations applied", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
