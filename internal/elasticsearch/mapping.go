package elasticsearch

// EndInstantField holds the raw end instant. It is a date so range filters
// and doc values work on it; ignore_malformed keeps unreadable values out of
// the index, which makes them match the perpetual (missing) window.
const EndInstantField = "end_instant"

// ListingMapping returns the index body for the concrete listing index.
func ListingMapping(shards, replicas int) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   shards,
			"number_of_replicas": replicas,
		},
		"mappings": map[string]any{
			"dynamic": "strict",
			"properties": map[string]any{
				"id": map[string]any{
					"type": "keyword",
				},
				"title": map[string]any{
					"type": "text",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
					},
				},
				"description": map[string]any{
					"type": "text",
				},
				"organizer": map[string]any{
					"type": "text",
				},
				"organization_id": map[string]any{
					"type": "keyword",
				},
				"category": map[string]any{
					"type": "keyword",
				},
				"region": map[string]any{
					"type": "keyword",
				},
				"status": map[string]any{
					"type": "keyword",
				},
				EndInstantField: map[string]any{
					"type":             "date",
					"format":           "strict_date_optional_time||epoch_millis",
					"ignore_malformed": true,
				},
				"created_instant": map[string]any{
					"type":   "date",
					"format": "strict_date_optional_time||epoch_millis",
				},
				"updated_instant": map[string]any{
					"type":   "date",
					"format": "strict_date_optional_time||epoch_millis",
				},
				"classified_at": map[string]any{
					"type":   "date",
					"format": "epoch_millis",
				},
				"stored_group": map[string]any{
					"type": "byte",
				},
				"stored_sort_key": map[string]any{
					"type": "long",
				},
			},
		},
	}
}
