package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dstrelkov/mobsync/internal/models"
	"github.com/dstrelkov/mobsync/internal/services"
)

var (
	queueUser   string
	queueStatus string
	queueLimit  int
	queueLease  time.Duration
	queueReason string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the sync queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's queue items",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repos, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewQueueService(db, repos, newLogger(), queueLease)
		items, err := svc.List(context.Background(), queueUser, models.QueueStatus(queueStatus), queueLimit, 0)
		if err != nil {
			return err
		}

		for _, it := range items {
			fmt.Printf("%s  %-11s  p%-2d  r%d/%d  %s %s/%s  %s\n",
				it.ID, it.Status, it.Priority, it.RetryCount, it.MaxRetries,
				it.Operation, it.EntityType, it.EntityID,
				it.CreatedAt.Format(time.RFC3339))
			if it.LastError != "" {
				fmt.Printf("    last error: %s\n", it.LastError)
			}
		}
		fmt.Printf("%d item(s)\n", len(items))
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <item-id>",
	Short: "Put a failed item back on the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repos, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewQueueService(db, repos, newLogger(), queueLease)
		if err := svc.Retry(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("item requeued")
		return nil
	},
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel <item-id>",
	Short: "Cancel an unclaimed item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repos, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewQueueService(db, repos, newLogger(), queueLease)
		if err := svc.Cancel(context.Background(), args[0], queueReason); err != nil {
			return err
		}
		fmt.Println("item cancelled")
		return nil
	},
}

var queueSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim items whose claim lease expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repos, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewQueueService(db, repos, newLogger(), queueLease)
		n, err := svc.SweepStuck(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%d item(s) reclaimed\n", n)
		return nil
	},
}

func init() {
	queueListCmd.Flags().StringVar(&queueUser, "user", "", "user id")
	queueListCmd.Flags().StringVar(&queueStatus, "status", "", "filter by status (PENDING, IN_PROGRESS, SYNCED, FAILED, CONFLICT)")
	queueListCmd.Flags().IntVar(&queueLimit, "limit", 50, "max items to list")
	queueListCmd.MarkFlagRequired("user")

	queueCancelCmd.Flags().StringVar(&queueReason, "reason", "cancelled by operator", "cancellation reason")

	queueSweepCmd.Flags().DurationVar(&queueLease, "lease", 5*time.Minute, "claim lease timeout")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueCancelCmd)
	queueCmd.AddCommand(queueSweepCmd)
}
