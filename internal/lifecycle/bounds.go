package lifecycle

import (
	"fmt"
	"time"
)

// Bounds is a snapshot of "now" and the reference-zone civil day that
// contains it, in epoch milliseconds.
type Bounds struct {
	Now      int64 `json:"now"`
	DayStart int64 `json:"day_start"`
	// DayEnd is the last millisecond of the day (next day start - 1).
	DayEnd int64  `json:"day_end"`
	Zone   string `json:"zone"`
}

// NewBounds computes the day boundaries containing now in loc. A nil loc is
// an error: falling back to any default zone would move the due-today and
// expired boundaries.
func NewBounds(now time.Time, loc *time.Location) (Bounds, error) {
	if loc == nil {
		return Bounds{}, fmt.Errorf("%w: no location", ErrInvalidZone)
	}

	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	next := start.AddDate(0, 0, 1)

	return Bounds{
		Now:      now.UnixMilli(),
		DayStart: start.UnixMilli(),
		DayEnd:   next.UnixMilli() - 1,
		Zone:     loc.String(),
	}, nil
}

// NowTime returns Now as a UTC time.
func (b Bounds) NowTime() time.Time {
	return time.UnixMilli(b.Now).UTC()
}

// Window is an inclusive range over end instants in epoch milliseconds. A
// nil bound is open. A Missing window matches only listings without a
// usable end instant.
type Window struct {
	Group   Group  `json:"group"`
	Missing bool   `json:"missing,omitempty"`
	From    *int64 `json:"from"`
	To      *int64 `json:"to"`
}

// Contains reports whether an end instant (present, end) falls in w.
func (w Window) Contains(end int64, present bool) bool {
	if w.Missing {
		return !present
	}
	if !present {
		return false
	}
	if w.From != nil && end < *w.From {
		return false
	}
	if w.To != nil && end > *w.To {
		return false
	}
	return true
}

func ptr(v int64) *int64 { return &v }

// Window returns the end-instant window for g. The four windows are disjoint
// and together cover every input:
//
//	expired    end <= now-1
//	due_today  now <= end <= day_end
//	future     end >= day_end+1
//	perpetual  no end instant
//
// An end instant equal to now is therefore still due today.
func (b Bounds) Window(g Group) Window {
	switch g {
	case DueToday:
		return Window{Group: DueToday, From: ptr(b.Now), To: ptr(b.DayEnd)}
	case Future:
		return Window{Group: Future, From: ptr(b.DayEnd + 1)}
	case Expired:
		return Window{Group: Expired, To: ptr(b.Now - 1)}
	default:
		return Window{Group: Perpetual, Missing: true}
	}
}

// Windows returns the windows of every group in display order.
func (b Bounds) Windows() []Window {
	out := make([]Window, 0, len(Groups))
	for _, g := range Groups {
		out = append(out, b.Window(g))
	}
	return out
}

// ClassifyMillis classifies an end instant given in epoch milliseconds.
func (b Bounds) ClassifyMillis(end int64, present bool) Classification {
	for _, w := range b.Windows() {
		if w.Contains(end, present) {
			return Classification{Group: w.Group, SortKey: sortKey(end, present)}
		}
	}
	// Unreachable while the windows cover every input.
	return Classification{Group: Perpetual, SortKey: PerpetualSortKey}
}

// Classify classifies an optional end instant.
func (b Bounds) Classify(end *time.Time) Classification {
	if end == nil {
		return b.ClassifyMillis(0, false)
	}
	return b.ClassifyMillis(end.UnixMilli(), true)
}

func sortKey(end int64, present bool) int64 {
	if !present {
		return PerpetualSortKey
	}
	return end
}
