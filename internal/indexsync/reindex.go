package indexsync

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/internal/domain"
)

const defaultReindexBatch = 500

// ListingPager walks the primary store in id order.
type ListingPager interface {
	ListAfter(ctx context.Context, afterID string, limit int) ([]domain.Listing, error)
}

// ReindexStats counts the outcome of a Reindex.
type ReindexStats struct {
	Scanned int `json:"scanned"`
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Reindex rewrites every listing of the primary store into the index,
// repairing content drift left by dropped events. Per-listing failures are
// counted and logged; only a store error or cancellation aborts the walk.
func (s *Synchronizer) Reindex(ctx context.Context, pager ListingPager, batchSize int) (*ReindexStats, error) {
	if batchSize <= 0 {
		batchSize = defaultReindexBatch
	}

	stats := &ReindexStats{}
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		page, err := pager.ListAfter(ctx, after, batchSize)
		if err != nil {
			return stats, fmt.Errorf("list listings after %q: %w", after, err)
		}

		for i := range page {
			s.reindexOne(ctx, &page[i], stats)
		}

		if len(page) < batchSize {
			break
		}
		after = page[len(page)-1].ID

		s.log.Info("Reindex progress",
			logger.Int("scanned", stats.Scanned),
			logger.Int("failed", stats.Failed),
		)
	}

	s.log.Info("Reindex completed",
		logger.Int("scanned", stats.Scanned),
		logger.Int("indexed", stats.Indexed),
		logger.Int("removed", stats.Removed),
		logger.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (s *Synchronizer) reindexOne(ctx context.Context, l *domain.Listing, stats *ReindexStats) {
	stats.Scanned++

	var err error
	if l.IsPublished() {
		err = s.IndexListing(ctx, l)
	} else {
		err = s.remove(ctx, l.ID)
	}
	if err != nil {
		stats.Failed++
		s.log.Error("Failed to reindex listing",
			logger.String("listing_id", l.ID),
			logger.Error(err),
		)
		return
	}

	if l.IsPublished() {
		stats.Indexed++
	} else {
		stats.Removed++
	}
}
