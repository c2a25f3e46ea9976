package main

import (
	"fmt"

	"github.com/programme-lv/pagesforge/conf"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/spf13/cobra"
)

func newDbCmd() *cobra.Command {
	var dbCmd = &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			connStr, err := conf.PgConnStrFromEnv(cmd.Context())
			if err != nil {
				return err
			}
			if err := coursedb.Migrate(connStr); err != nil {
				return err
			}
			fmt.Println("database schema is up to date")
			return nil
		},
	}
	dbCmd.AddCommand(initCmd)
	return dbCmd
}
