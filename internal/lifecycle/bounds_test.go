package lifecycle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
)

func kst(t *testing.T) *time.Location {
	t.Helper()
	loc, err := lifecycle.ParseZone("+09:00")
	require.NoError(t, err)
	return loc
}

func mustBounds(t *testing.T, now time.Time, loc *time.Location) lifecycle.Bounds {
	t.Helper()
	b, err := lifecycle.NewBounds(now, loc)
	require.NoError(t, err)
	return b
}

func TestNewBounds_ReferenceDay(t *testing.T) {
	loc := kst(t)
	// 2026-03-10 16:00 UTC is 2026-03-11 01:00 in +09:00.
	now := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)

	b := mustBounds(t, now, loc)

	wantStart := time.Date(2026, 3, 11, 0, 0, 0, 0, loc)
	assert.Equal(t, now.UnixMilli(), b.Now)
	assert.Equal(t, wantStart.UnixMilli(), b.DayStart)
	assert.Equal(t, wantStart.AddDate(0, 0, 1).UnixMilli()-1, b.DayEnd)
}

func TestNewBounds_IndependentOfInputLocation(t *testing.T) {
	loc := kst(t)
	instant := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	a := mustBounds(t, instant, loc)
	b := mustBounds(t, instant.In(ny), loc)
	assert.Equal(t, a, b)
}

func TestNewBounds_NilLocation(t *testing.T) {
	_, err := lifecycle.NewBounds(time.Now(), nil)
	require.ErrorIs(t, err, lifecycle.ErrInvalidZone)
}

func TestNewBounds_DSTDayLength(t *testing.T) {
	ny, err := lifecycle.ParseZone("America/New_York")
	require.NoError(t, err)

	// 2026-03-08 is a 23 hour day in New York.
	now := time.Date(2026, 3, 8, 12, 0, 0, 0, ny)
	b := mustBounds(t, now, ny)
	assert.Equal(t, int64(23*time.Hour/time.Millisecond)-1, b.DayEnd-b.DayStart)
}

func TestClassify_Boundaries(t *testing.T) {
	loc := kst(t)
	now := time.Date(2026, 3, 11, 15, 30, 0, 0, loc)
	b := mustBounds(t, now, loc)

	at := func(ms int64) *time.Time {
		v := time.UnixMilli(ms)
		return &v
	}

	tests := []struct {
		name string
		end  *time.Time
		want lifecycle.Group
	}{
		{"absent", nil, lifecycle.Perpetual},
		{"long ago", at(b.Now - int64(365*24*time.Hour/time.Millisecond)), lifecycle.Expired},
		{"start of today", at(b.DayStart), lifecycle.Expired},
		{"one ms before now", at(b.Now - 1), lifecycle.Expired},
		{"exactly now", at(b.Now), lifecycle.DueToday},
		{"one ms after now", at(b.Now + 1), lifecycle.DueToday},
		{"day end minus one", at(b.DayEnd - 1), lifecycle.DueToday},
		{"day end", at(b.DayEnd), lifecycle.DueToday},
		{"day end plus one", at(b.DayEnd + 1), lifecycle.Future},
		{"next year", at(b.DayEnd + int64(365*24*time.Hour/time.Millisecond)), lifecycle.Future},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Classify(tt.end)
			assert.Equal(t, tt.want, got.Group)
			if tt.end == nil {
				assert.Equal(t, lifecycle.PerpetualSortKey, got.SortKey)
			} else {
				assert.Equal(t, tt.end.UnixMilli(), got.SortKey)
			}
		})
	}
}

func TestClassify_PerpetualForAnyNow(t *testing.T) {
	loc := kst(t)
	for _, now := range []time.Time{
		time.Unix(0, 0),
		time.Date(2026, 1, 1, 0, 0, 0, 0, loc),
		time.Date(2099, 12, 31, 23, 59, 59, 0, loc),
	} {
		got := mustBounds(t, now, loc).Classify(nil)
		assert.Equal(t, lifecycle.Perpetual, got.Group)
		assert.Equal(t, lifecycle.PerpetualSortKey, got.SortKey)
	}
}

func TestClassify_MidnightRollover(t *testing.T) {
	loc := kst(t)
	end := time.Date(2026, 3, 11, 23, 59, 59, 0, loc)

	before := mustBounds(t, time.Date(2026, 3, 11, 23, 0, 0, 0, loc), loc)
	after := mustBounds(t, time.Date(2026, 3, 12, 0, 1, 0, 0, loc), loc)

	assert.Equal(t, lifecycle.DueToday, before.Classify(&end).Group)
	assert.Equal(t, lifecycle.Expired, after.Classify(&end).Group)
}

func TestClassify_UsesReferenceZoneNotUTC(t *testing.T) {
	loc := kst(t)
	// 20:00 UTC on the 10th is 05:00 on the 11th in +09:00, so an end at
	// 10:00 UTC on the 11th (19:00 local) is still today.
	now := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, lifecycle.DueToday, mustBounds(t, now, loc).Classify(&end).Group)
	assert.Equal(t, lifecycle.Future, mustBounds(t, now, time.UTC).Classify(&end).Group)
}

func TestClassify_ExpiredIsMonotonic(t *testing.T) {
	loc := kst(t)
	end := time.Date(2026, 3, 11, 12, 0, 0, 0, loc)
	now := end.Add(time.Millisecond)

	for i := 0; i < 48; i++ {
		b := mustBounds(t, now.Add(time.Duration(i)*time.Hour), loc)
		require.Equal(t, lifecycle.Expired, b.Classify(&end).Group, "hour %d", i)
	}
}

func TestWindows_DisjointAndExhaustive(t *testing.T) {
	loc := kst(t)
	b := mustBounds(t, time.Date(2026, 3, 11, 9, 15, 0, 0, loc), loc)

	ends := []int64{
		b.DayStart - 1, b.DayStart, b.Now - 1, b.Now, b.Now + 1,
		b.DayEnd - 1, b.DayEnd, b.DayEnd + 1, b.DayEnd + 2, 0, -1,
	}

	for _, end := range ends {
		matched := 0
		for _, w := range b.Windows() {
			if w.Contains(end, true) {
				matched++
			}
		}
		assert.Equal(t, 1, matched, "end=%d", end)
	}

	matched := 0
	for _, w := range b.Windows() {
		if w.Contains(0, false) {
			matched++
			assert.Equal(t, lifecycle.Perpetual, w.Group)
		}
	}
	assert.Equal(t, 1, matched)
}

func TestBounds_WindowMatchesClassify(t *testing.T) {
	loc := kst(t)
	b := mustBounds(t, time.Date(2026, 3, 11, 9, 15, 0, 0, loc), loc)

	for _, end := range []int64{b.Now - 1, b.Now, b.DayEnd, b.DayEnd + 1} {
		g := b.ClassifyMillis(end, true).Group
		assert.True(t, b.Window(g).Contains(end, true))
	}
}
