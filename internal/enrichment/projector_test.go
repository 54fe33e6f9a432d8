package enrichment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/internal/domain"
	"github.com/jonesrussell/north-cloud/listings/internal/enrichment"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
)

type fakeAggregates struct {
	rows  map[string]domain.Aggregates
	err   error
	calls int
	ids   []string
}

func (f *fakeAggregates) ByListingIDs(_ context.Context, ids []string) (map[string]domain.Aggregates, error) {
	f.calls++
	f.ids = ids
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func hit(id string, g lifecycle.Group, end *int64) domain.ListingHit {
	return domain.ListingHit{
		Document: domain.IndexDocument{
			ID:             id,
			Title:          "title " + id,
			Category:       "environment",
			Status:         domain.StatusPublished,
			Organizer:      "indexed organizer",
			EndInstant:     end,
			CreatedInstant: 1_700_000_000_000,
		},
		Group: g,
	}
}

func TestProjector_PreservesOrderWithOneLookup(t *testing.T) {
	img := "https://img/b.jpg"
	src := &fakeAggregates{rows: map[string]domain.Aggregates{
		"b": {ListingID: "b", OrganizerName: "Harbor Club", CategoryName: "Environment", ParticipantCount: 4, BookmarkCount: 9, FirstImageURL: &img},
		"a": {ListingID: "a", ParticipantCount: 1},
	}}
	end := int64(1_773_241_199_999)
	p := enrichment.NewProjector(src, time.UTC, logger.NewNop())

	out, err := p.Project(context.Background(), []domain.ListingHit{
		hit("b", lifecycle.DueToday, &end),
		hit("c", lifecycle.Future, nil),
		hit("a", lifecycle.Perpetual, nil),
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, []string{"b", "c", "a"}, src.ids)

	assert.Equal(t, []string{"b", "c", "a"}, []string{out[0].ID, out[1].ID, out[2].ID})

	assert.Equal(t, "Harbor Club", out[0].OrganizerName)
	assert.Equal(t, "Environment", out[0].CategoryName)
	assert.Equal(t, int64(9), out[0].BookmarkCount)
	assert.Equal(t, img, out[0].FirstImageURL)
	assert.Equal(t, "due_today", out[0].Group)
	assert.Equal(t, 0, out[0].GroupCode)
	require.NotNil(t, out[0].EndAt)
	assert.Equal(t, end, out[0].EndAt.UnixMilli())

	// no aggregates: zero values, indexed organizer kept
	assert.Equal(t, int64(0), out[1].ParticipantCount)
	assert.Empty(t, out[1].FirstImageURL)
	assert.Equal(t, "indexed organizer", out[1].OrganizerName)
	assert.Equal(t, 1, out[1].GroupCode)

	assert.Nil(t, out[2].EndAt)
	assert.Equal(t, "perpetual", out[2].Group)
}

func TestProjector_EmptyHitsSkipsLookup(t *testing.T) {
	src := &fakeAggregates{}
	out, err := enrichment.NewProjector(src, nil, nil).Project(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, src.calls)
}

func TestProjector_SourceError(t *testing.T) {
	src := &fakeAggregates{err: errors.New("connection refused")}
	_, err := enrichment.NewProjector(src, nil, nil).Project(context.Background(), []domain.ListingHit{
		hit("a", lifecycle.Expired, nil),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestProjector_DuplicateIDsLookedUpOnce(t *testing.T) {
	src := &fakeAggregates{rows: map[string]domain.Aggregates{}}
	out, err := enrichment.NewProjector(src, nil, nil).Project(context.Background(), []domain.ListingHit{
		hit("a", lifecycle.Future, nil),
		hit("a", lifecycle.Future, nil),
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, []string{"a"}, src.ids)
}
