package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dstrelkov/mobsync/internal/repositories/cache"
	"github.com/dstrelkov/mobsync/internal/services"
)

var (
	cachePath string
	cacheUser string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage an offline cache file",
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired entries from a cache file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		repo, db, err := cache.InitDatabase(ctx, cachePath)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewCacheService(repo, newLogger())
		n, err := svc.SweepExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d entry(ies) removed\n", n)
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop all of a user's entries from a cache file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		repo, db, err := cache.InitDatabase(ctx, cachePath)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewCacheService(repo, newLogger())
		n, err := svc.InvalidateAll(ctx, cacheUser)
		if err != nil {
			return err
		}
		fmt.Printf("%d entry(ies) removed\n", n)
		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cachePath, "file", "mobsync_cache.db", "cache file path")

	cacheInvalidateCmd.Flags().StringVar(&cacheUser, "user", "", "user id")
	cacheInvalidateCmd.MarkFlagRequired("user")

	cacheCmd.AddCommand(cacheSweepCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
}
