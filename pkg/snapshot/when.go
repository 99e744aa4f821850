package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTime is returned by ParseTime.
var ErrInvalidTime = errors.New("invalid rollback time")

var timeLayouts = []string{time.RFC3339, time.DateTime, time.DateOnly}

// ParseTime reads a rollback target as RFC 3339, "2006-01-02 15:04:05" or a
// bare date. Times without a zone are UTC.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, value)
}
