// Package ranking builds listing search queries whose order is lifecycle
// group ascending, then created_instant descending.
package ranking

import (
	"strconv"

	"github.com/jonesrussell/north-cloud/listings/internal/domain"
	"github.com/jonesrussell/north-cloud/listings/internal/elasticsearch"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
)

// Boosts weights the full-text fields.
type Boosts struct {
	Title       float64
	Organizer   float64
	Description float64
}

// DefaultBoosts favours title matches.
func DefaultBoosts() Boosts {
	return Boosts{Title: 3, Organizer: 2, Description: 1}
}

// QueryBuilder builds ranking queries from search requests.
type QueryBuilder struct {
	boosts Boosts
}

// NewQueryBuilder creates a new query builder.
func NewQueryBuilder(boosts Boosts) *QueryBuilder {
	return &QueryBuilder{boosts: boosts}
}

// Build constructs the search body for a validated request. b is the query's
// own "now"; it drives the inline sort and the optional group filter.
func (qb *QueryBuilder) Build(req *domain.SearchRequest, b lifecycle.Bounds) map[string]any {
	return map[string]any{
		"query":            qb.buildBoolQuery(req, b),
		"from":             req.From(),
		"size":             req.Size,
		"sort":             Sort(req.Mode, b),
		"track_total_hits": true,
	}
}

// Sort returns the sort clause for mode. Both modes put the lifecycle group
// first, so the first sort value of each hit is its group.
func Sort(mode domain.SortMode, b lifecycle.Bounds) []any {
	var group any
	if mode == domain.SortInline {
		group = map[string]any{
			"_script": map[string]any{
				"type":  "number",
				"order": "asc",
				"script": map[string]any{
					"lang":   "painless",
					"source": lifecycle.SortScript,
					"params": b.ScriptParams(),
				},
			},
		}
	} else {
		group = map[string]any{
			"stored_group": map[string]any{"order": "asc", "missing": "_last"},
		}
	}

	return []any{
		group,
		map[string]any{"created_instant": map[string]any{"order": "desc"}},
		map[string]any{"id": map[string]any{"order": "asc"}},
	}
}

func (qb *QueryBuilder) buildBoolQuery(req *domain.SearchRequest, b lifecycle.Bounds) map[string]any {
	boolQuery := map[string]any{}

	if req.Query != "" {
		boolQuery["must"] = []any{qb.buildMultiMatchQuery(req.Query)}
	}

	if filters := buildFilters(req, b); len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	if len(boolQuery) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{"bool": boolQuery}
}

func (qb *QueryBuilder) buildMultiMatchQuery(query string) map[string]any {
	return map[string]any{
		"multi_match": map[string]any{
			"query": query,
			"fields": []string{
				"title^" + formatBoost(qb.boosts.Title),
				"organizer^" + formatBoost(qb.boosts.Organizer),
				"description^" + formatBoost(qb.boosts.Description),
			},
			"type":     "best_fields",
			"operator": "and",
		},
	}
}

func buildFilters(req *domain.SearchRequest, b lifecycle.Bounds) []any {
	var result []any

	if len(req.Categories) > 0 {
		result = append(result, map[string]any{
			"terms": map[string]any{"category": req.Categories},
		})
	}

	if req.Region != "" {
		result = append(result, map[string]any{
			"term": map[string]any{"region": req.Region},
		})
	}

	if req.Status != "" {
		result = append(result, map[string]any{
			"term": map[string]any{"status": req.Status},
		})
	}

	if req.EndFrom != nil || req.EndTo != nil {
		rng := map[string]any{"format": "epoch_millis"}
		if req.EndFrom != nil {
			rng["gte"] = req.EndFrom.UnixMilli()
		}
		if req.EndTo != nil {
			rng["lte"] = req.EndTo.UnixMilli()
		}
		result = append(result, map[string]any{
			"range": map[string]any{elasticsearch.EndInstantField: rng},
		})
	}

	// The group filter is derived from end_instant, never from stored_group,
	// so it is correct even when the stored field is stale.
	if req.Group != nil {
		result = append(result, elasticsearch.WindowFilter(b.Window(*req.Group)))
	}

	return result
}

func formatBoost(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Compare orders two hits by the same keys as Sort: group ascending,
// created_instant descending, id ascending.
func Compare(a, b domain.ListingHit) int {
	if a.Group != b.Group {
		if a.Group < b.Group {
			return -1
		}
		return 1
	}
	if a.Document.CreatedInstant != b.Document.CreatedInstant {
		if a.Document.CreatedInstant > b.Document.CreatedInstant {
			return -1
		}
		return 1
	}
	switch {
	case a.Document.ID < b.Document.ID:
		return -1
	case a.Document.ID > b.Document.ID:
		return 1
	}
	return 0
}
