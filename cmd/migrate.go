package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/schema"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := schema.Migrate(ctx, pool); err != nil {
			return err
		}

		zap.L().Info("migrations up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
