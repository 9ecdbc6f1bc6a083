package main

import (
	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/output"
	"github.com/smartexam/reval/internal/svcctx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		if err := svcctx.StoreFrom(cmd.Context()).Migrate(cmd.Context()); err != nil {
			return err
		}
		output.Notice("schema up to date")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
