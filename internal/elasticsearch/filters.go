package elasticsearch

import "github.com/jonesrussell/north-cloud/listings/internal/lifecycle"

// WindowFilter renders a lifecycle window as a filter on end_instant.
// Bounds are inclusive on both sides, matching Window.Contains.
func WindowFilter(w lifecycle.Window) map[string]any {
	if w.Missing {
		return map[string]any{
			"bool": map[string]any{
				"must_not": []any{
					map[string]any{"exists": map[string]any{"field": EndInstantField}},
				},
			},
		}
	}

	rng := map[string]any{"format": "epoch_millis"}
	if w.From != nil {
		rng["gte"] = *w.From
	}
	if w.To != nil {
		rng["lte"] = *w.To
	}
	return map[string]any{
		"range": map[string]any{EndInstantField: rng},
	}
}

// PassQuery selects documents whose recomputed group is target and whose
// stored group is anything else.
func PassQuery(b lifecycle.Bounds, target lifecycle.Group) map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"filter": []any{WindowFilter(b.Window(target))},
			"must_not": []any{
				map[string]any{"term": map[string]any{"stored_group": int(target)}},
			},
		},
	}
}

// PassBody is the update-by-query request body for one reclassify pass.
func PassBody(b lifecycle.Bounds, target lifecycle.Group) map[string]any {
	return map[string]any{
		"query": PassQuery(b, target),
		"script": map[string]any{
			"lang":   "painless",
			"source": lifecycle.ReclassifyScript,
			"params": b.PassParams(target),
		},
	}
}
