package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedInstant is returned for end instants that cannot be read.
var ErrMalformedInstant = errors.New("malformed end instant")

// Layouts accepted for string end instants. Strings without an offset are
// read as UTC, matching how the index store parses the same value.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseInstant reads a stored end instant. nil and "" mean absent and return
// (nil, nil). Numbers and numeric strings are epoch milliseconds.
func ParseInstant(raw any) (*time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	case *time.Time:
		return v, nil
	case int64:
		return millis(v), nil
	case int:
		return millis(int64(v)), nil
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) ||
			v >= float64(math.MaxInt64) || v < float64(math.MinInt64) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInstant, v)
		}
		return millis(int64(v)), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedInstant, v.String())
		}
		return millis(n), nil
	case string:
		return parseInstantString(v)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrMalformedInstant, raw)
	}
}

func parseInstantString(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return millis(n), nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrMalformedInstant, s)
}

func millis(ms int64) *time.Time {
	t := time.UnixMilli(ms).UTC()
	return &t
}
