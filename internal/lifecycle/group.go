// Package lifecycle classifies listings into display tiers from their end
// instant, evaluated against the civil day of a fixed reference timezone.
//
// The classification is expressed once, as a set of disjoint inclusive
// windows over the end instant (see Bounds.Window). Classify, the index
// store filters used by the reclassifier and search, and the painless
// scripts evaluated inside the index store all consume the same windows.
package lifecycle

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Group is a lifecycle tier. Lower values are displayed first.
type Group int

const (
	// DueToday listings end during the current reference-zone day.
	DueToday Group = 0
	// Future listings end after the current day.
	Future Group = 1
	// Perpetual listings have no end instant.
	Perpetual Group = 2
	// Expired listings ended before now.
	Expired Group = 3
)

// Groups lists every group in display order.
var Groups = []Group{DueToday, Future, Perpetual, Expired}

// PerpetualSortKey is the sort key stored for listings without an end instant.
const PerpetualSortKey int64 = math.MaxInt64

// ErrUnknownGroup is returned by ParseGroup for unrecognised input.
var ErrUnknownGroup = errors.New("unknown lifecycle group")

var groupNames = map[Group]string{
	DueToday:  "due_today",
	Future:    "future",
	Perpetual: "perpetual",
	Expired:   "expired",
}

// String returns the snake_case name of the group.
func (g Group) String() string {
	if name, ok := groupNames[g]; ok {
		return name
	}
	return "group(" + strconv.Itoa(int(g)) + ")"
}

// Valid reports whether g is one of the four defined groups.
func (g Group) Valid() bool {
	_, ok := groupNames[g]
	return ok
}

// ParseGroup accepts a group name ("due_today") or its numeric code ("0").
func ParseGroup(s string) (Group, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for g, name := range groupNames {
		if s == name {
			return g, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Group(n).Valid() {
		return Group(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGroup, s)
}

// Classification is the result of classifying one listing.
type Classification struct {
	Group   Group
	SortKey int64
}
