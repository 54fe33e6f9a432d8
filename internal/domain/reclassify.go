package domain

import "github.com/jonesrussell/north-cloud/listings/internal/lifecycle"

// PassResult summarises one reclassification pass as reported by the index.
type PassResult struct {
	Group     lifecycle.Group `json:"-"`
	Total     int64           `json:"total"`
	Updated   int64           `json:"updated"`
	Noops     int64           `json:"noops"`
	Conflicts int64           `json:"version_conflicts"`
	TookMs    int64           `json:"took_ms"`
	Failures  []string        `json:"failures,omitempty"`
}
