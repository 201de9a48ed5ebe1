package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses one of the duration-valued config strings
// (scheduler.poll_interval, notifier.retry_base, ...). The path names the
// field in the returned error. Empty input is 0 with no error so callers
// can layer their own default on top.
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

// ParseDurationOrDefault is ParseDurationField with a fallback for unset
// or zero values. Invalid input still errors rather than silently taking
// the default.
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
