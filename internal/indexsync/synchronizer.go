// Package indexsync propagates committed listing changes from the primary
// store into the listing index.
package indexsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/listings/internal/domain"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/listings/internal/metrics"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 1024
	defaultTimeout   = 10 * time.Second
)

// IndexWriter writes listing documents to the index.
type IndexWriter interface {
	IndexListing(ctx context.Context, doc *domain.IndexDocument) error
	DeleteListing(ctx context.Context, id string) error
}

// ListingSource loads committed listings from the primary store.
type ListingSource interface {
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
}

// Params holds the dependencies of a Synchronizer.
type Params struct {
	Index      IndexWriter
	Listings   ListingSource
	Classifier *lifecycle.Classifier
	Metrics    *metrics.Metrics
	Logger     logger.Logger
	Workers    int
	// QueueSize is the total backlog, split evenly across the workers.
	QueueSize int
	// Timeout bounds one Apply including retries.
	Timeout time.Duration
	Retry   retry.Config
}

// Synchronizer applies change events to the index on a worker pool. Each
// listing id is owned by one worker, so events for the same listing are
// applied in the order they were enqueued.
type Synchronizer struct {
	index      IndexWriter
	listings   ListingSource
	classifier *lifecycle.Classifier
	metrics    *metrics.Metrics
	log        logger.Logger
	workers    int
	timeout    time.Duration
	retry      retry.Config

	shards  []chan domain.ChangeEvent
	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Synchronizer. Call Start to begin draining events.
func New(p Params) *Synchronizer {
	if p.Workers <= 0 {
		p.Workers = defaultWorkers
	}
	if p.QueueSize <= 0 {
		p.QueueSize = defaultQueueSize
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}
	if p.Retry.MaxAttempts == 0 {
		p.Retry = retry.DefaultConfig()
	}

	perShard := max(1, (p.QueueSize+p.Workers-1)/p.Workers)
	shards := make([]chan domain.ChangeEvent, p.Workers)
	for i := range shards {
		shards[i] = make(chan domain.ChangeEvent, perShard)
	}

	return &Synchronizer{
		index:      p.Index,
		listings:   p.Listings,
		classifier: p.Classifier,
		metrics:    p.Metrics,
		log:        p.Logger,
		workers:    p.Workers,
		timeout:    p.Timeout,
		retry:      p.Retry,
		shards:     shards,
	}
}

// Start launches the workers. Events already queued are processed.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	for i := range s.workers {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.log.Info("Index synchronizer started",
		logger.Int("workers", s.workers),
		logger.Int("queue_size", cap(s.shards[0])*len(s.shards)),
	)
}

// Stop stops accepting events, drains the queues and waits for the workers.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, q := range s.shards {
		close(q)
	}
	started := s.started
	s.mu.Unlock()

	if started {
		s.wg.Wait()
	}
	s.log.Info("Index synchronizer stopped")
}

// Enqueue hands an event to the worker owning its listing id without
// blocking. When that worker's queue is full or the synchronizer is stopped
// the event is dropped and logged; the reindex command repairs the resulting
// content drift.
func (s *Synchronizer) Enqueue(evt domain.ChangeEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		s.drop(evt, "synchronizer stopped")
		return
	}

	select {
	case s.shard(evt.ListingID) <- evt:
		s.metrics.QueueDepth(s.depth())
	default:
		s.drop(evt, "queue full")
	}
}

func (s *Synchronizer) shard(listingID string) chan domain.ChangeEvent {
	return s.shards[xxhash.Sum64String(listingID)%uint64(len(s.shards))]
}

func (s *Synchronizer) depth() int {
	n := 0
	for _, q := range s.shards {
		n += len(q)
	}
	return n
}

func (s *Synchronizer) drop(evt domain.ChangeEvent, reason string) {
	s.metrics.SyncOperation(string(evt.Op), metrics.ResultDropped)
	s.log.Warn("Dropped listing change event",
		logger.String("listing_id", evt.ListingID),
		logger.String("op", string(evt.Op)),
		logger.String("reason", reason),
	)
}

func (s *Synchronizer) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	// Shutdown cancels ctx, but queued events are still drained.
	base := context.WithoutCancel(ctx)
	for evt := range s.shards[id] {
		s.metrics.QueueDepth(s.depth())

		opCtx, cancel := context.WithTimeout(base, s.timeout)
		if err := s.Apply(opCtx, evt); err != nil {
			s.log.Error("Failed to synchronize listing to index",
				logger.Int("worker", id),
				logger.String("listing_id", evt.ListingID),
				logger.String("op", string(evt.Op)),
				logger.Error(err),
			)
		}
		cancel()
	}
}

// Apply synchronously propagates one event. Creates and updates reload the
// listing from the primary store and classify it with the current instant;
// deletes, unpublished listings and listings that no longer exist are
// removed from the index.
func (s *Synchronizer) Apply(ctx context.Context, evt domain.ChangeEvent) error {
	err := s.apply(ctx, evt)
	if err != nil {
		s.metrics.SyncOperation(string(evt.Op), metrics.ResultFailure)
		return err
	}
	s.metrics.SyncOperation(string(evt.Op), metrics.ResultSuccess)
	return nil
}

func (s *Synchronizer) apply(ctx context.Context, evt domain.ChangeEvent) error {
	if evt.ListingID == "" {
		return errors.New("change event without listing id")
	}
	if evt.RemovesDocument() {
		return s.remove(ctx, evt.ListingID)
	}

	listing, err := s.listings.GetByID(ctx, evt.ListingID)
	if errors.Is(err, domain.ErrListingNotFound) {
		return s.remove(ctx, evt.ListingID)
	}
	if err != nil {
		return fmt.Errorf("load listing %s: %w", evt.ListingID, err)
	}
	if !listing.IsPublished() {
		return s.remove(ctx, evt.ListingID)
	}

	return s.IndexListing(ctx, listing)
}

// IndexListing classifies a listing against the current instant and writes it.
func (s *Synchronizer) IndexListing(ctx context.Context, listing *domain.Listing) error {
	bounds, err := s.classifier.Bounds()
	if err != nil {
		return fmt.Errorf("compute day bounds: %w", err)
	}

	c := bounds.Classify(listing.EndAt)
	doc := domain.NewIndexDocument(listing, c, bounds.Now)

	err = retry.Retry(ctx, s.retry, func() error {
		return s.index.IndexListing(ctx, doc)
	})
	if err != nil {
		return fmt.Errorf("index listing %s: %w", listing.ID, err)
	}

	s.log.Debug("Indexed listing",
		logger.String("listing_id", listing.ID),
		logger.String("group", c.Group.String()),
	)
	return nil
}

func (s *Synchronizer) remove(ctx context.Context, id string) error {
	err := retry.Retry(ctx, s.retry, func() error {
		return s.index.DeleteListing(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	return nil
}
