package arc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"
)

// ParseAmount parses a subgraph BigInt rendered as a decimal string. An empty
// string is zero.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

// ParseTimestamp parses a unix timestamp in seconds. An empty string is the
// zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}
