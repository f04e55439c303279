package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFlags(t *testing.T) {

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-d", "db", "-f", "cache.db", "-b", "25",
			"-l", "10", "-s", "@every 30s", "-e", "@every 5m",
		}, expectPanic: false,
			expected: &Config{
				DatabaseDSN:        "db",
				CachePath:          "cache.db",
				ClaimBatchSize:     25,
				LeaseTimeout:       10 * time.Minute,
				QueueSweepSchedule: "@every 30s",
				CacheSweepSchedule: "@every 5m",
			}},
		{name: "Test2 unknown flags are ignored", args: []string{"cmd",
			"-d", "db", "-x", "junk",
		}, expectPanic: false,
			expected: &Config{
				DatabaseDSN: "db",
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			origArgs := os.Args
			t.Cleanup(func() { os.Args = origArgs })
			os.Args = tt.args

			config := &Config{}

			if tt.expectPanic {
				assert.Panics(t, func() { parseFlags(config) })
				return
			}

			parseFlags(config)
			assert.Equal(t, tt.expected, config)
		})
	}
}
