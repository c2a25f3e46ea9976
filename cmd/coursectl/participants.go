package main

import (
	"fmt"

	"github.com/programme-lv/pagesforge/dispatch"
	"github.com/spf13/cobra"
)

func newParticipantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "participants",
		Short: "List registered participants and their dispatch state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			entries, err := dispatch.Roster(cmd.Context(), store)
			if err != nil {
				return err
			}
			fmt.Println(dispatch.RosterTable(entries))
			return nil
		},
	}
}
