// syncctl is the operator tool for the sync core: inspecting and nudging
// queue items, conflicts and sessions directly against the database.
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dstrelkov/mobsync/internal/logging"
	"github.com/dstrelkov/mobsync/internal/repositories/repomanager"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var dsn string

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "Operator tool for the mobile sync core",
	Long: `syncctl inspects and manages the sync queue, conflicts and sessions.

All commands connect directly to the PostgreSQL store given by --dsn
(or the SYNC_DATABASE_DSN environment variable).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("SYNC_DATABASE_DSN"), "PostgreSQL DSN of the sync store")

	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(conflictCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(cacheCmd)
}

func connect() (*sql.DB, repomanager.RepositoryManager, error) {
	if dsn == "" {
		return nil, nil, fmt.Errorf("no DSN given: set --dsn or SYNC_DATABASE_DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	return db, repomanager.NewPostgresRepositoryManager(), nil
}

func newLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
