// Package domain holds the listing types shared by the primary store, the index and the API.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
)

// Listing statuses. Only published listings are present in the index.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusClosed    = "closed"
)

// ErrListingNotFound is returned when a listing does not exist in the primary store.
var ErrListingNotFound = errors.New("listing not found")

// ErrInvalidListing wraps listing input validation failures.
var ErrInvalidListing = errors.New("invalid listing")

// Listing is a row of the primary store.
type Listing struct {
	ID             string     `db:"id"              json:"id"`
	OrganizationID *string    `db:"organization_id" json:"organization_id,omitempty"`
	OrganizerName  string     `db:"organizer_name"  json:"organizer_name,omitempty"`
	Category       string     `db:"category"        json:"category"`
	Region         string     `db:"region"          json:"region"`
	Title          string     `db:"title"           json:"title"`
	Description    string     `db:"description"     json:"description"`
	Status         string     `db:"status"          json:"status"`
	EndAt          *time.Time `db:"end_at"          json:"end_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// IsPublished reports whether the listing belongs in the index.
func (l *Listing) IsPublished() bool {
	return l.Status == StatusPublished
}

// ListingInput is the writable part of a listing.
type ListingInput struct {
	OrganizationID *string    `json:"organization_id,omitempty"`
	Category       string     `binding:"required" json:"category"`
	Region         string     `json:"region"`
	Title          string     `binding:"required" json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	EndAt          *time.Time `json:"end_at,omitempty"`
}

// Validate normalises the input and checks required fields.
func (in *ListingInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidListing)
	}
	if in.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidListing)
	}
	if in.Status == "" {
		in.Status = StatusPublished
	}
	switch in.Status {
	case StatusDraft, StatusPublished, StatusClosed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidListing, in.Status)
	}
	return nil
}

// Apply copies the input onto l.
func (in *ListingInput) Apply(l *Listing) {
	l.OrganizationID = in.OrganizationID
	l.Category = in.Category
	l.Region = in.Region
	l.Title = in.Title
	l.Description = in.Description
	l.Status = in.Status
	l.EndAt = in.EndAt
}

// ChangeOp is the kind of primary-store mutation.
type ChangeOp string

// Change operations.
const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent is handed to the synchronizer after a primary-store commit.
type ChangeEvent struct {
	Op             ChangeOp   `json:"op"`
	ListingID      string     `json:"listing_id"`
	EndInstant     *time.Time `json:"end_instant,omitempty"`
	CreatedInstant time.Time  `json:"created_instant"`
	Status         string     `json:"status"`
}

// NewChangeEvent builds an event from a committed listing.
func NewChangeEvent(op ChangeOp, l *Listing) ChangeEvent {
	return ChangeEvent{
		Op:             op,
		ListingID:      l.ID,
		EndInstant:     l.EndAt,
		CreatedInstant: l.CreatedAt,
		Status:         l.Status,
	}
}

// RemovesDocument reports whether the event takes the listing out of the index.
func (e ChangeEvent) RemovesDocument() bool {
	return e.Op == OpDelete || (e.Status != "" && e.Status != StatusPublished)
}

// IndexDocument is the denormalized listing stored in the index.
type IndexDocument struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	Region         string `json:"region"`
	Status         string `json:"status"`
	OrganizationID string `json:"organization_id,omitempty"`
	Organizer      string `json:"organizer,omitempty"`
	// EndInstant is epoch milliseconds; null means perpetual.
	EndInstant     *int64 `json:"end_instant"`
	CreatedInstant int64  `json:"created_instant"`
	UpdatedInstant int64  `json:"updated_instant"`
	StoredGroup    int    `json:"stored_group"`
	StoredSortKey  int64  `json:"stored_sort_key"`
	ClassifiedAt   int64  `json:"classified_at"`
}

// NewIndexDocument projects a listing and its write-time classification.
func NewIndexDocument(l *Listing, c lifecycle.Classification, classifiedAt int64) *IndexDocument {
	doc := &IndexDocument{
		ID:             l.ID,
		Title:          l.Title,
		Description:    l.Description,
		Category:       l.Category,
		Region:         l.Region,
		Status:         l.Status,
		Organizer:      l.OrganizerName,
		CreatedInstant: l.CreatedAt.UnixMilli(),
		UpdatedInstant: l.UpdatedAt.UnixMilli(),
		StoredGroup:    int(c.Group),
		StoredSortKey:  c.SortKey,
		ClassifiedAt:   classifiedAt,
	}
	if l.OrganizationID != nil {
		doc.OrganizationID = *l.OrganizationID
	}
	if l.EndAt != nil {
		end := l.EndAt.UnixMilli()
		doc.EndInstant = &end
	}
	return doc
}
