package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dstrelkov/mobsync/internal/models"
	"github.com/dstrelkov/mobsync/internal/services"
)

var (
	conflictUser     string
	conflictStatus   string
	conflictLimit    int
	conflictResolver string
	conflictDataFile string
	conflictMerge    bool
)

var conflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Inspect and resolve sync conflicts",
}

var conflictListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repos, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewConflictService(db, repos, nil, newLogger())
		list, err := svc.List(context.Background(), conflictUser, models.ConflictStatus(conflictStatus), conflictLimit, 0)
		if err != nil {
			return err
		}

		for _, c := range list {
			fmt.Printf("%s  %-8s  %-16s  %s/%s  v%d->v%d  %s\n",
				c.ID, c.Status, c.Type, c.EntityType, c.EntityID,
				c.ClientBaseVersion, c.ServerVersion,
				c.DetectedAt.Format(time.RFC3339))
		}
		fmt.Printf("%d conflict(s)\n", len(list))
		return nil
	},
}

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id> <server-wins|client-wins|manual>",
	Short: "Resolve a conflict",
	Long: `Resolve a conflict with the given strategy.

server-wins and client-wins pick the stored copy; manual takes the
winning payload from --data (a JSON file), optionally recorded as a
merge with --merge.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repos, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewConflictService(db, repos, nil, newLogger())
		ctx := context.Background()

		var resolved *models.Conflict
		switch args[1] {
		case "server-wins":
			resolved, err = svc.ResolveServerWins(ctx, args[0], conflictResolver)
		case "client-wins":
			resolved, err = svc.ResolveClientWins(ctx, args[0], conflictResolver)
		case "manual":
			if conflictDataFile == "" {
				return fmt.Errorf("manual resolution needs --data")
			}
			var data []byte
			data, err = os.ReadFile(conflictDataFile)
			if err != nil {
				return err
			}
			resolved, err = svc.ResolveManual(ctx, args[0], data, conflictResolver, conflictMerge)
		default:
			return fmt.Errorf("unknown strategy %q", args[1])
		}
		if err != nil {
			return err
		}

		fmt.Printf("conflict resolved (%s)\n", resolved.Strategy)
		return nil
	},
}

var conflictIgnoreCmd = &cobra.Command{
	Use:   "ignore <conflict-id>",
	Short: "Dismiss a conflict without picking a winner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repos, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewConflictService(db, repos, nil, newLogger())
		if err := svc.Ignore(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("conflict ignored")
		return nil
	},
}

var conflictReopenCmd = &cobra.Command{
	Use:   "reopen <conflict-id>",
	Short: "Put a resolved or ignored conflict back under review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repos, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewConflictService(db, repos, nil, newLogger())
		if err := svc.Reopen(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("conflict reopened")
		return nil
	},
}

func init() {
	conflictListCmd.Flags().StringVar(&conflictUser, "user", "", "user id")
	conflictListCmd.Flags().StringVar(&conflictStatus, "status", "", "filter by status (DETECTED, RESOLVED, IGNORED)")
	conflictListCmd.Flags().IntVar(&conflictLimit, "limit", 50, "max conflicts to list")
	conflictListCmd.MarkFlagRequired("user")

	conflictResolveCmd.Flags().StringVar(&conflictResolver, "by", "operator", "who resolves the conflict")
	conflictResolveCmd.Flags().StringVar(&conflictDataFile, "data", "", "JSON file with the winning payload (manual only)")
	conflictResolveCmd.Flags().BoolVar(&conflictMerge, "merge", false, "record the manual resolution as a merge")

	conflictCmd.AddCommand(conflictListCmd)
	conflictCmd.AddCommand(conflictResolveCmd)
	conflictCmd.AddCommand(conflictIgnoreCmd)
	conflictCmd.AddCommand(conflictReopenCmd)
}
