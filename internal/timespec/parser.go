// Package timespec parses human-written time specifications from the
// configuration, e.g. per-auxiliary lifecycle timeouts.
package timespec

import (
	"fmt"
	"time"
)

// Duration parses a Go duration specification like "30s" or "1m30s".
// An empty spec yields the fallback, so optional config fields read
// naturally at the call site.
func Duration(spec string, fallback time.Duration) (time.Duration, error) {
	if spec == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid time specification: %s (use a duration like '30s' or '1m30s')", spec)
	}
	if d <= 0 {
		return 0, fmt.Errorf("time specification must be positive: %s", spec)
	}
	return d, nil
}
