// Package enrichment joins relational aggregates onto ordered index hits.
package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/internal/domain"
)

// AggregateSource loads aggregates for a batch of listing ids.
type AggregateSource interface {
	ByListingIDs(ctx context.Context, ids []string) (map[string]domain.Aggregates, error)
}

// Projector turns index hits into caller-facing listings.
type Projector struct {
	source AggregateSource
	loc    *time.Location
	log    logger.Logger
}

// NewProjector creates a projector. Instants are rendered in loc.
func NewProjector(source AggregateSource, loc *time.Location, log logger.Logger) *Projector {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Projector{source: source, loc: loc, log: log}
}

// Project enriches hits with one aggregate lookup. The result has the same
// order and length as hits; a hit without aggregates keeps zero values.
func (p *Projector) Project(ctx context.Context, hits []domain.ListingHit) ([]*domain.EnrichedListing, error) {
	out := make([]*domain.EnrichedListing, 0, len(hits))
	if len(hits) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for i := range hits {
		id := hits[i].Document.ID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	aggs, err := p.source.ByListingIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load aggregates: %w", err)
	}

	missing := 0
	for i := range hits {
		agg, ok := aggs[hits[i].Document.ID]
		if !ok {
			missing++
		}
		out = append(out, p.project(&hits[i], agg))
	}
	if missing > 0 {
		p.log.Debug("Hits without aggregates",
			logger.Int("missing", missing),
			logger.Int("hits", len(hits)),
		)
	}

	return out, nil
}

func (p *Projector) project(hit *domain.ListingHit, agg domain.Aggregates) *domain.EnrichedListing {
	doc := &hit.Document
	el := &domain.EnrichedListing{
		ID:               doc.ID,
		Title:            doc.Title,
		Description:      doc.Description,
		Category:         doc.Category,
		CategoryName:     agg.CategoryName,
		Region:           doc.Region,
		Status:           doc.Status,
		OrganizerName:    doc.Organizer,
		CreatedAt:        time.UnixMilli(doc.CreatedInstant).In(p.loc),
		Group:            hit.Group.String(),
		GroupCode:        int(hit.Group),
		ParticipantCount: agg.ParticipantCount,
		BookmarkCount:    agg.BookmarkCount,
	}
	if agg.OrganizerName != "" {
		el.OrganizerName = agg.OrganizerName
	}
	if doc.EndInstant != nil {
		end := time.UnixMilli(*doc.EndInstant).In(p.loc)
		el.EndAt = &end
	}
	if agg.FirstImageURL != nil {
		el.FirstImageURL = *agg.FirstImageURL
	}
	return el
}
