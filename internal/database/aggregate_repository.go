package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/listings/internal/domain"
)

// AggregateRepository loads the relational values shown next to search hits.
type AggregateRepository struct {
	db *sqlx.DB
}

// NewAggregateRepository creates a new aggregate repository.
func NewAggregateRepository(db *sqlx.DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

// ByListingIDs returns aggregates keyed by listing id in one round trip.
// Ids without a row are absent from the map.
func (r *AggregateRepository) ByListingIDs(ctx context.Context, ids []string) (map[string]domain.Aggregates, error) {
	if len(ids) == 0 {
		return map[string]domain.Aggregates{}, nil
	}

	query := `
		SELECT
			l.id AS listing_id,
			COALESCE(o.name, '') AS organizer_name,
			COALESCE(c.name, '') AS category_name,
			(SELECT COUNT(*) FROM listing_participants p WHERE p.listing_id = l.id) AS participant_count,
			(SELECT COUNT(*) FROM listing_bookmarks b WHERE b.listing_id = l.id) AS bookmark_count,
			(SELECT i.url FROM listing_images i WHERE i.listing_id = l.id
			 ORDER BY i.position, i.id LIMIT 1) AS first_image_url
		FROM listings l
		LEFT JOIN organizations o ON o.id = l.organization_id
		LEFT JOIN categories c ON c.slug = l.category
		WHERE l.id::text = ANY($1)
	`

	var rows []domain.Aggregates
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to load listing aggregates: %w", err)
	}

	out := make(map[string]domain.Aggregates, len(rows))
	for _, row := range rows {
		out[row.ListingID] = row
	}
	return out, nil
}
