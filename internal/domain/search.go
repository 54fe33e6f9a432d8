package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
)

// ErrInvalidRequest wraps search request validation failures.
var ErrInvalidRequest = errors.New("invalid search request")

// SortMode selects where the lifecycle group used for ordering comes from.
type SortMode string

const (
	// SortStored orders by the stored_group field kept fresh by the reclassifier.
	SortStored SortMode = "stored"
	// SortInline recomputes the group per document at query time.
	SortInline SortMode = "inline"
)

// SearchRequest holds the content filters and page of a listing search.
type SearchRequest struct {
	Query      string           `json:"query"`
	Categories []string         `json:"categories,omitempty"`
	Region     string           `json:"region,omitempty"`
	Status     string           `json:"status,omitempty"`
	EndFrom    *time.Time       `json:"end_from,omitempty"`
	EndTo      *time.Time       `json:"end_to,omitempty"`
	Group      *lifecycle.Group `json:"group,omitempty"`
	Page       int              `json:"page"`
	Size       int              `json:"size"`
	Mode       SortMode         `json:"mode,omitempty"`
}

// Validate applies defaults and checks the request.
func (req *SearchRequest) Validate(maxPageSize, defaultPageSize, maxQueryLength int) error {
	if len(req.Query) > maxQueryLength {
		return fmt.Errorf("%w: query length exceeds maximum of %d characters", ErrInvalidRequest, maxQueryLength)
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Size < 1 {
		req.Size = defaultPageSize
	}
	if req.Size > maxPageSize {
		return fmt.Errorf("%w: page size exceeds maximum of %d", ErrInvalidRequest, maxPageSize)
	}
	if req.Status == "" {
		req.Status = StatusPublished
	}
	switch req.Mode {
	case "":
		req.Mode = SortStored
	case SortStored, SortInline:
	default:
		return fmt.Errorf("%w: unknown sort mode %q", ErrInvalidRequest, req.Mode)
	}
	if req.Group != nil && !req.Group.Valid() {
		return fmt.Errorf("%w: unknown group %d", ErrInvalidRequest, *req.Group)
	}
	if req.EndFrom != nil && req.EndTo != nil && req.EndFrom.After(*req.EndTo) {
		return fmt.Errorf("%w: end_from cannot be after end_to", ErrInvalidRequest)
	}
	return nil
}

// From returns the zero-based offset of the first hit.
func (req *SearchRequest) From() int {
	return (req.Page - 1) * req.Size
}

// ListingHit is one ordered hit returned by the index.
type ListingHit struct {
	Document IndexDocument
	// Group is the lifecycle group the hit was ordered by.
	Group lifecycle.Group
	Score float64
}

// SearchResult is the raw ordered result of a ranking query.
type SearchResult struct {
	Total  int64
	TookMs int64
	Hits   []ListingHit
}

// Aggregates are relational values joined onto a hit by listing id.
type Aggregates struct {
	ListingID        string  `db:"listing_id"`
	OrganizerName    string  `db:"organizer_name"`
	CategoryName     string  `db:"category_name"`
	ParticipantCount int64   `db:"participant_count"`
	BookmarkCount    int64   `db:"bookmark_count"`
	FirstImageURL    *string `db:"first_image_url"`
}

// EnrichedListing is the caller-facing representation of a hit.
type EnrichedListing struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	CategoryName     string     `json:"category_name,omitempty"`
	Region           string     `json:"region,omitempty"`
	Status           string     `json:"status"`
	OrganizerName    string     `json:"organizer_name,omitempty"`
	EndAt            *time.Time `json:"end_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	Group            string     `json:"group"`
	GroupCode        int        `json:"group_code"`
	ParticipantCount int64      `json:"participant_count"`
	BookmarkCount    int64      `json:"bookmark_count"`
	FirstImageURL    string     `json:"first_image_url,omitempty"`
}

// SearchResponse is the search endpoint payload.
type SearchResponse struct {
	Query       string             `json:"query"`
	Mode        SortMode           `json:"mode"`
	TotalHits   int64              `json:"total_hits"`
	TotalPages  int                `json:"total_pages"`
	CurrentPage int                `json:"current_page"`
	PageSize    int                `json:"page_size"`
	TookMs      int64              `json:"took_ms"`
	Listings    []*EnrichedListing `json:"listings"`
}
