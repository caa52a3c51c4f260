package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses one duration-typed config value (Go duration
// syntax: "10m", "1h30m"). The empty string means "unset" and parses to 0 so
// optional fields can fall back to their defaults; negative durations are
// rejected because no interval, window, or timeout in this config can be
// negative. path names the field in the error, e.g. "tracker.window".
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a default applied when
// the field is unset or zero. Parse errors still surface; a default never
// hides a typo.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
