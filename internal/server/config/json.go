package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dstrelkov/mobsync/internal/flagx"
	"github.com/dstrelkov/mobsync/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "5m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN        string         `json:"database_dsn"`
	CachePath          string         `json:"cache_path"`
	ClaimBatchSize     int            `json:"claim_batch_size"`
	LeaseTimeout       timex.Duration `json:"lease_timeout"`
	QueueSweepSchedule string         `json:"queue_sweep_schedule"`
	CacheSweepSchedule string         `json:"cache_sweep_schedule"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.CachePath = c.CachePath
	config.ClaimBatchSize = c.ClaimBatchSize
	config.LeaseTimeout = time.Duration(c.LeaseTimeout.Duration)
	config.QueueSweepSchedule = c.QueueSweepSchedule
	config.CacheSweepSchedule = c.CacheSweepSchedule
}
