package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the record and run log tables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openRetentionStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := openRunLog(cmd.Context(), st)
		if err != nil {
			return err
		}

		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver), zap.String("table", cfg.Store.Table), zap.Bool("run_log", runs != nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
