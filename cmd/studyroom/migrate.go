package main

import (
	"fmt"

	"studyroom/internal/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to an existing database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				dbPath = cfg.Database.Path
			}

			applied, err := database.Migrate(cmd.Context(), dbPath)
			out := cmd.OutOrStdout()
			for _, version := range applied {
				fmt.Fprintf(out, "Applied %s\n", version)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintf(out, "%s is up to date\n", dbPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database file (overrides database.path)")
	return cmd
}
