package indexsync_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/listings/internal/domain"
	"github.com/jonesrussell/north-cloud/listings/internal/indexsync"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/listings/internal/metrics"
	"github.com/jonesrussell/north-cloud/listings/internal/reclassify"
	"github.com/jonesrussell/north-cloud/listings/internal/testhelpers"
)

type fixture struct {
	now        time.Time
	loc        *time.Location
	classifier *lifecycle.Classifier
	index      *testhelpers.MemoryIndex
	listings   *testhelpers.MemoryListings
	metrics    *metrics.Metrics
	sync       *indexsync.Synchronizer
}

func newFixture(t *testing.T, queueSize int) *fixture {
	t.Helper()
	loc, err := lifecycle.ParseZone("+09:00")
	require.NoError(t, err)

	f := &fixture{
		now:      time.Date(2026, 3, 11, 10, 0, 0, 0, loc),
		loc:      loc,
		index:    testhelpers.NewMemoryIndex(),
		listings: testhelpers.NewMemoryListings(),
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}
	f.classifier, err = lifecycle.NewClassifier(loc, func() time.Time { return f.now }, logger.NewNop())
	require.NoError(t, err)

	f.sync = indexsync.New(indexsync.Params{
		Index:      f.index,
		Listings:   f.listings,
		Classifier: f.classifier,
		Metrics:    f.metrics,
		Logger:     logger.NewNop(),
		Workers:    2,
		QueueSize:  queueSize,
		Timeout:    time.Second,
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
			IsRetryable:  retry.DefaultIsRetryable,
		},
	})
	return f
}

func (f *fixture) listing(id string, end *time.Time, status string) domain.Listing {
	l := domain.Listing{
		ID:        id,
		Title:     "Listing " + id,
		Category:  "environment",
		Status:    status,
		EndAt:     end,
		CreatedAt: f.now.Add(-time.Hour),
		UpdatedAt: f.now,
	}
	f.listings.Put(l)
	return l
}

func create(l domain.Listing) domain.ChangeEvent {
	return domain.NewChangeEvent(domain.OpCreate, &l)
}

func TestApply_CreateClassifiesAtWriteTime(t *testing.T) {
	f := newFixture(t, 8)
	tonight := time.Date(2026, 3, 11, 21, 0, 0, 0, f.loc)
	l := f.listing("a", &tonight, domain.StatusPublished)

	require.NoError(t, f.sync.Apply(context.Background(), create(l)))

	doc, ok := f.index.Get("a")
	require.True(t, ok)
	assert.Equal(t, int(lifecycle.DueToday), doc.StoredGroup)
	assert.Equal(t, tonight.UnixMilli(), doc.StoredSortKey)
	assert.Equal(t, f.now.UnixMilli(), doc.ClassifiedAt)
	assert.Equal(t, l.CreatedAt.UnixMilli(), doc.CreatedInstant)
}

func TestApply_PerpetualStaysPerpetual(t *testing.T) {
	f := newFixture(t, 8)
	l := f.listing("p", nil, domain.StatusPublished)

	require.NoError(t, f.sync.Apply(context.Background(), create(l)))

	doc, ok := f.index.Get("p")
	require.True(t, ok)
	assert.Nil(t, doc.EndInstant)
	assert.Equal(t, int(lifecycle.Perpetual), doc.StoredGroup)
	assert.Equal(t, lifecycle.PerpetualSortKey, doc.StoredSortKey)

	r := reclassify.New(reclassify.Params{
		Index:      f.index,
		Classifier: f.classifier,
		Logger:     logger.NewNop(),
	})
	for tick := 0; tick < 5; tick++ {
		f.now = f.now.Add(13 * time.Hour)
		_, err := r.RunOnce(context.Background())
		require.NoError(t, err)
	}

	doc, _ = f.index.Get("p")
	assert.Equal(t, int(lifecycle.Perpetual), doc.StoredGroup)
	assert.Equal(t, 1, f.index.Writes())
}

func TestApply_UpdateChangesGroup(t *testing.T) {
	f := newFixture(t, 8)
	nextWeek := f.now.AddDate(0, 0, 7)
	l := f.listing("a", &nextWeek, domain.StatusPublished)
	require.NoError(t, f.sync.Apply(context.Background(), create(l)))

	yesterday := f.now.AddDate(0, 0, -1)
	l = f.listing("a", &yesterday, domain.StatusPublished)
	require.NoError(t, f.sync.Apply(context.Background(), domain.NewChangeEvent(domain.OpUpdate, &l)))

	doc, _ := f.index.Get("a")
	assert.Equal(t, int(lifecycle.Expired), doc.StoredGroup)
	assert.Equal(t, yesterday.UnixMilli(), *doc.EndInstant)
}

func TestApply_RemovesDocuments(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture) domain.ChangeEvent
	}{
		{"delete", func(f *fixture) domain.ChangeEvent {
			l := f.listing("a", nil, domain.StatusPublished)
			f.listings.Remove("a")
			return domain.NewChangeEvent(domain.OpDelete, &l)
		}},
		{"unpublished status", func(f *fixture) domain.ChangeEvent {
			l := f.listing("a", nil, domain.StatusClosed)
			return domain.NewChangeEvent(domain.OpUpdate, &l)
		}},
		{"listing gone before sync", func(f *fixture) domain.ChangeEvent {
			l := f.listing("a", nil, domain.StatusPublished)
			f.listings.Remove("a")
			return domain.NewChangeEvent(domain.OpUpdate, &l)
		}},
		{"event status stale but row unpublished", func(f *fixture) domain.ChangeEvent {
			l := f.listing("a", nil, domain.StatusPublished)
			f.listing("a", nil, domain.StatusDraft)
			return domain.NewChangeEvent(domain.OpUpdate, &l)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 8)
			f.index.Seed(domain.IndexDocument{ID: "a", StoredGroup: int(lifecycle.Perpetual)})

			require.NoError(t, f.sync.Apply(context.Background(), tt.setup(f)))
			_, ok := f.index.Get("a")
			assert.False(t, ok)
		})
	}
}

func TestApply_DeleteMissingDocumentSucceeds(t *testing.T) {
	f := newFixture(t, 8)
	evt := domain.ChangeEvent{Op: domain.OpDelete, ListingID: "never-indexed"}
	require.NoError(t, f.sync.Apply(context.Background(), evt))
}

func TestApply_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t, 8)
	l := f.listing("a", nil, domain.StatusPublished)
	f.index.FailNextIndexWrites(errors.New("connection refused"), errors.New("status 503"))

	require.NoError(t, f.sync.Apply(context.Background(), create(l)))
	_, ok := f.index.Get("a")
	assert.True(t, ok)
}

func TestApply_PermanentFailureIsReturned(t *testing.T) {
	f := newFixture(t, 8)
	l := f.listing("a", nil, domain.StatusPublished)
	f.index.FailNextIndexWrites(errors.New("mapper_parsing_exception"))

	err := f.sync.Apply(context.Background(), create(l))
	require.Error(t, err)
	assert.Equal(t, 0, f.index.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.SyncOperations.WithLabelValues("create", metrics.ResultFailure)), 0)
}

func TestEnqueue_WorkersDrainQueue(t *testing.T) {
	f := newFixture(t, 16)
	for _, id := range []string{"a", "b", "c", "d"} {
		f.sync.Enqueue(create(f.listing(id, nil, domain.StatusPublished)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.sync.Start(ctx)
	cancel()
	f.sync.Stop()

	assert.Equal(t, 4, f.index.Len())
}

func TestEnqueue_FailureNeverSurfaces(t *testing.T) {
	f := newFixture(t, 4)
	l := f.listing("a", nil, domain.StatusPublished)
	f.index.FailNextIndexWrites(errors.New("mapper_parsing_exception"))

	f.sync.Start(context.Background())
	assert.NotPanics(t, func() { f.sync.Enqueue(create(l)) })
	f.sync.Stop()

	assert.Equal(t, 0, f.index.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.SyncOperations.WithLabelValues("create", metrics.ResultFailure)), 0)
}

func TestEnqueue_DropsWhenFullOrStopped(t *testing.T) {
	f := newFixture(t, 1)
	l := f.listing("a", nil, domain.StatusPublished)

	f.sync.Enqueue(create(l))
	f.sync.Enqueue(create(l))
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.SyncOperations.WithLabelValues("create", metrics.ResultDropped)), 0)

	f.sync.Stop()
	assert.NotPanics(t, func() { f.sync.Enqueue(create(l)) })
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.SyncOperations.WithLabelValues("create", metrics.ResultDropped)), 0)
}

// stallFirstRead blocks the first GetByID for id after it has read the row,
// until release is closed. reached is closed once the read has happened.
func stallFirstRead(f *fixture, id string) (reached, release chan struct{}) {
	reached = make(chan struct{})
	release = make(chan struct{})
	var stalled atomic.Bool
	f.listings.AfterGet = func(got string) {
		if got == id && stalled.CompareAndSwap(false, true) {
			close(reached)
			<-release
		}
	}
	return reached, release
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for listing read")
	}
}

func TestEnqueue_DeleteWhileCreateInFlight(t *testing.T) {
	f := newFixture(t, 16)
	l := f.listing("a", nil, domain.StatusPublished)
	reached, release := stallFirstRead(f, "a")

	f.sync.Start(context.Background())
	f.sync.Enqueue(create(l))
	waitClosed(t, reached)

	f.listings.Remove("a")
	f.sync.Enqueue(domain.NewChangeEvent(domain.OpDelete, &l))
	close(release)
	f.sync.Stop()

	_, ok := f.index.Get("a")
	assert.False(t, ok, "deleted listing must not remain in the index")
}

func TestEnqueue_LatestUpdateWins(t *testing.T) {
	f := newFixture(t, 16)
	nextWeek := f.now.AddDate(0, 0, 7)
	first := f.listing("a", &nextWeek, domain.StatusPublished)
	reached, release := stallFirstRead(f, "a")

	f.sync.Start(context.Background())
	f.sync.Enqueue(domain.NewChangeEvent(domain.OpUpdate, &first))
	waitClosed(t, reached)

	yesterday := f.now.AddDate(0, 0, -1)
	second := f.listing("a", &yesterday, domain.StatusPublished)
	f.sync.Enqueue(domain.NewChangeEvent(domain.OpUpdate, &second))
	close(release)
	f.sync.Stop()

	doc, ok := f.index.Get("a")
	require.True(t, ok)
	require.NotNil(t, doc.EndInstant)
	assert.Equal(t, yesterday.UnixMilli(), *doc.EndInstant)
	assert.Equal(t, int(lifecycle.Expired), doc.StoredGroup)
}

func TestEnqueue_EventsForOneListingShareAWorker(t *testing.T) {
	f := newFixture(t, 2)
	l := f.listing("a", nil, domain.StatusPublished)

	// One slot per worker: a second event for the same id finds its
	// worker's queue full even though the other worker's queue is empty.
	f.sync.Enqueue(create(l))
	f.sync.Enqueue(create(l))

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.SyncOperations.WithLabelValues("create", metrics.ResultDropped)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.SyncQueueDepth), 0)
	f.sync.Stop()
}
