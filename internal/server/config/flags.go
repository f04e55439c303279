package config

import (
	"flag"
	"os"
	"time"

	"github.com/dstrelkov/mobsync/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-f string   SQLite cache file path
//	-b int      claim batch size
//	-l int      claim lease timeout, minutes
//	-s string   queue sweep cron schedule (e.g., "@every 1m")
//	-e string   cache sweep cron schedule (e.g., "@every 10m")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - The lease timeout flag is accepted as an integer in minutes and then
//     converted to a time.Duration value.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-f", "-b", "-l", "-s", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.CachePath, "f", config.CachePath, "offline cache file path")
	fs.IntVar(&config.ClaimBatchSize, "b", config.ClaimBatchSize, "claim batch size")

	leaseTimeout := fs.Int("l", int(config.LeaseTimeout.Minutes()), "claim lease timeout (in minutes)")

	fs.StringVar(&config.QueueSweepSchedule, "s", config.QueueSweepSchedule, "queue sweep schedule")
	fs.StringVar(&config.CacheSweepSchedule, "e", config.CacheSweepSchedule, "cache sweep schedule")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.LeaseTimeout = time.Duration(*leaseTimeout) * time.Minute
}
