package lifecycle

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidZone is returned when the reference timezone cannot be resolved.
var ErrInvalidZone = errors.New("invalid reference timezone")

var offsetPattern = regexp.MustCompile(`^(?:UTC|GMT)?([+-])(\d{1,2})(?::?(\d{2}))?$`)

// ParseZone resolves the configured reference timezone. Accepted forms are a
// fixed offset ("+09:00", "+0900", "UTC+9", "GMT-03:30"), "UTC", or an IANA
// name ("Asia/Seoul"). IANA names resolve through the tz table compiled into
// the binary by the time/tzdata import in main. "Local" and the empty string
// are rejected so the host configuration can never leak in.
func ParseZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	switch strings.ToUpper(name) {
	case "":
		return nil, fmt.Errorf("%w: empty", ErrInvalidZone)
	case "LOCAL":
		return nil, fmt.Errorf("%w: host-local zone is not allowed", ErrInvalidZone)
	case "UTC", "Z", "GMT":
		return time.UTC, nil
	}

	if m := offsetPattern.FindStringSubmatch(strings.ToUpper(name)); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("%w: offset out of range: %s", ErrInvalidZone, name)
		}
		seconds := hours*3600 + minutes*60
		if m[1] == "-" {
			seconds = -seconds
		}
		return time.FixedZone(name, seconds), nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidZone, err)
	}
	return loc, nil
}
