package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/listings/internal/domain"
)

const listingColumns = `
	l.id, l.organization_id, COALESCE(o.name, '') AS organizer_name,
	l.category, l.region, l.title, l.description, l.status,
	l.end_at, l.created_at, l.updated_at`

// zeroUUID sorts before every generated id.
const zeroUUID = "00000000-0000-0000-0000-000000000000"

// ListingRepository handles database operations for listings.
type ListingRepository struct {
	db *sqlx.DB
}

// NewListingRepository creates a new listing repository.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Create inserts a listing. An empty ID is filled with a new UUID.
func (r *ListingRepository) Create(ctx context.Context, l *domain.Listing) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}

	query := `
		INSERT INTO listings (
			id, organization_id, category, region, title, description, status, end_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		l.ID, l.OrganizationID, l.Category, l.Region, l.Title, l.Description, l.Status, l.EndAt,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}

	return nil
}

// Update overwrites the writable columns of a listing.
func (r *ListingRepository) Update(ctx context.Context, l *domain.Listing) error {
	query := `
		UPDATE listings
		SET organization_id = $2, category = $3, region = $4, title = $5,
		    description = $6, status = $7, end_at = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		l.ID, l.OrganizationID, l.Category, l.Region, l.Title, l.Description, l.Status, l.EndAt,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrListingNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update listing %s: %w", l.ID, err)
	}

	return nil
}

// Delete removes a listing and returns the deleted row.
func (r *ListingRepository) Delete(ctx context.Context, id string) (*domain.Listing, error) {
	query := `
		DELETE FROM listings
		WHERE id = $1
		RETURNING id, status, end_at, created_at, updated_at
	`

	var l domain.Listing
	err := r.db.QueryRowxContext(ctx, query, id).StructScan(&l)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete listing %s: %w", id, err)
	}

	return &l, nil
}

// GetByID loads a listing with its organizer name.
func (r *ListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings l
		LEFT JOIN organizations o ON o.id = l.organization_id
		WHERE l.id = $1
	`

	var l domain.Listing
	err := r.db.GetContext(ctx, &l, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %s: %w", id, err)
	}

	return &l, nil
}

// ListAfter returns up to limit listings with id greater than afterID, in id
// order. An empty afterID starts from the beginning.
func (r *ListingRepository) ListAfter(ctx context.Context, afterID string, limit int) ([]domain.Listing, error) {
	if afterID == "" {
		afterID = zeroUUID
	}

	query := `SELECT ` + listingColumns + `
		FROM listings l
		LEFT JOIN organizations o ON o.id = l.organization_id
		WHERE l.id > $1
		ORDER BY l.id
		LIMIT $2
	`

	var listings []domain.Listing
	if err := r.db.SelectContext(ctx, &listings, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}

	return listings, nil
}
