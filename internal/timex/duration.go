// Package timex provides a JSON-friendly wrapper around time.Duration that
// accepts both string values ("5m", "1h30m") and integer nanoseconds.
package timex

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration embeds time.Duration and implements json.Unmarshaler /
// json.Marshaler so that configuration files can use readable values.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
}
