package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	sessionUser  string
	sessionLimit int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect sync sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's sync sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repos, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := repos.Sessions(db).List(context.Background(), sessionUser, sessionLimit, 0)
		if err != nil {
			return err
		}

		for _, s := range list {
			fmt.Printf("%s  %-11s  %-13s %-7s  up:%d down:%d conflicts:%d/%d  %s (%ds)\n",
				s.ID, s.Status, s.SyncType, s.DeviceType,
				s.RecordsUploaded, s.RecordsDownloaded,
				s.ConflictsResolved, s.ConflictsDetected,
				s.StartedAt.Format(time.RFC3339), s.DurationSeconds)
			if s.ErrorMessage != "" {
				fmt.Printf("    error: %s\n", s.ErrorMessage)
			}
		}
		fmt.Printf("%d session(s)\n", len(list))
		return nil
	},
}

func init() {
	sessionListCmd.Flags().StringVar(&sessionUser, "user", "", "user id")
	sessionListCmd.Flags().IntVar(&sessionLimit, "limit", 20, "max sessions to list")
	sessionListCmd.MarkFlagRequired("user")

	sessionCmd.AddCommand(sessionListCmd)
}
