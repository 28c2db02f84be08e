package utils

import (
	"errors"
	"time"
)

var ErrInvalidTimestamp = errors.New("timestamp must be RFC 3339, e.g. 2024-01-31T08:00:00Z")

// ParseTimestamp accepts strict RFC 3339 (with optional fractional seconds)
// and returns the instant in UTC.
func ParseTimestamp(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)

	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}

	return parsed.UTC(), nil
}

// ParseOptionalTimestamp returns nil for an empty value.
func ParseOptionalTimestamp(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	parsed, err := ParseTimestamp(value)

	if err != nil {
		return nil, err
	}

	return &parsed, nil
}
