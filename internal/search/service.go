// Package search is the listing read path: validate, build, execute, project.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/internal/domain"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/listings/internal/metrics"
	"github.com/jonesrussell/north-cloud/listings/internal/ranking"
)

// Searcher executes a search body against the listing index.
type Searcher interface {
	Search(ctx context.Context, query map[string]any) (*domain.SearchResult, error)
}

// Projector enriches ordered hits.
type Projector interface {
	Project(ctx context.Context, hits []domain.ListingHit) ([]*domain.EnrichedListing, error)
}

// BoundsSource yields the day bounds for the current query.
type BoundsSource interface {
	Bounds() (lifecycle.Bounds, error)
}

// Limits bounds incoming requests.
type Limits struct {
	MaxPageSize     int
	DefaultPageSize int
	MaxQueryLength  int
	Timeout         time.Duration
}

// Params holds the collaborators of a Service.
type Params struct {
	Index     Searcher
	Projector Projector
	Bounds    BoundsSource
	Builder   *ranking.QueryBuilder
	Metrics   *metrics.Metrics
	Logger    logger.Logger
	Limits    Limits
}

// Service orchestrates listing searches.
type Service struct {
	index     Searcher
	projector Projector
	bounds    BoundsSource
	builder   *ranking.QueryBuilder
	metrics   *metrics.Metrics
	log       logger.Logger
	limits    Limits
}

// NewService creates a search service.
func NewService(p Params) *Service {
	if p.Builder == nil {
		p.Builder = ranking.NewQueryBuilder(ranking.DefaultBoosts())
	}
	if p.Logger == nil {
		p.Logger = logger.NewNop()
	}
	return &Service{
		index:     p.Index,
		projector: p.Projector,
		bounds:    p.Bounds,
		builder:   p.Builder,
		metrics:   p.Metrics,
		log:       p.Logger,
		limits:    p.Limits,
	}
}

// Search runs req and returns one enriched page. Validation failures wrap
// domain.ErrInvalidRequest.
func (s *Service) Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchResponse, error) {
	start := time.Now()

	if err := req.Validate(s.limits.MaxPageSize, s.limits.DefaultPageSize, s.limits.MaxQueryLength); err != nil {
		s.log.Warn("Invalid search request", logger.Error(err))
		s.metrics.SearchObserved(string(req.Mode), metrics.ResultFailure, time.Since(start))
		return nil, err
	}

	resp, err := s.search(ctx, req)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailure
	}
	s.metrics.SearchObserved(string(req.Mode), result, time.Since(start))
	if err != nil {
		return nil, err
	}

	resp.TookMs = time.Since(start).Milliseconds()
	s.log.Info("Search completed",
		logger.String("query", req.Query),
		logger.String("mode", string(req.Mode)),
		logger.Int64("total_hits", resp.TotalHits),
		logger.Int64("took_ms", resp.TookMs),
	)
	return resp, nil
}

func (s *Service) search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchResponse, error) {
	if s.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.limits.Timeout)
		defer cancel()
	}

	b, err := s.bounds.Bounds()
	if err != nil {
		return nil, fmt.Errorf("compute day bounds: %w", err)
	}

	res, err := s.index.Search(ctx, s.builder.Build(req, b))
	if err != nil {
		s.log.Error("Search execution failed",
			logger.String("query", req.Query),
			logger.Error(err),
		)
		return nil, err
	}

	if !slices.IsSortedFunc(res.Hits, ranking.Compare) {
		s.log.Warn("Search hits out of ranking order, stored groups may be missing",
			logger.String("mode", string(req.Mode)),
			logger.Int("hits", len(res.Hits)),
		)
	}

	listings, err := s.projector.Project(ctx, res.Hits)
	if err != nil {
		s.log.Error("Enrichment failed", logger.Error(err))
		return nil, err
	}

	return &domain.SearchResponse{
		Query:       req.Query,
		Mode:        req.Mode,
		TotalHits:   res.Total,
		TotalPages:  totalPages(res.Total, req.Size),
		CurrentPage: req.Page,
		PageSize:    req.Size,
		Listings:    listings,
	}, nil
}

// IsInvalidRequest reports whether err came from request validation.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, domain.ErrInvalidRequest)
}

func totalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(size)))
}
