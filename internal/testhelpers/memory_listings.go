package testhelpers

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/listings/internal/domain"
)

// MemoryListings is an in-memory primary store keyed by listing id.
type MemoryListings struct {
	mu       sync.RWMutex
	listings map[string]domain.Listing

	// AfterGet, when set, runs after GetByID has read a listing and before
	// it returns. Set it before the store is shared between goroutines.
	AfterGet func(id string)
}

// NewMemoryListings creates a store holding listings.
func NewMemoryListings(listings ...domain.Listing) *MemoryListings {
	m := &MemoryListings{listings: make(map[string]domain.Listing)}
	for _, l := range listings {
		m.listings[l.ID] = l
	}
	return m
}

// Put inserts or replaces a listing.
func (m *MemoryListings) Put(l domain.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = l
}

// Remove deletes a listing.
func (m *MemoryListings) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listings, id)
}

// GetByID returns a copy of the listing or domain.ErrListingNotFound.
func (m *MemoryListings) GetByID(_ context.Context, id string) (*domain.Listing, error) {
	m.mu.RLock()
	l, ok := m.listings[id]
	m.mu.RUnlock()

	if m.AfterGet != nil {
		m.AfterGet(id)
	}
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	return &l, nil
}

// Create stores l, assigning an id and timestamps.
func (m *MemoryListings) Create(_ context.Context, l *domain.Listing) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = *l
	return nil
}

// Update replaces an existing listing, keeping its creation time.
func (m *MemoryListings) Update(_ context.Context, l *domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.listings[l.ID]
	if !ok {
		return domain.ErrListingNotFound
	}
	l.CreatedAt = prev.CreatedAt
	l.UpdatedAt = time.Now().UTC()
	m.listings[l.ID] = *l
	return nil
}

// Delete removes a listing and returns it.
func (m *MemoryListings) Delete(_ context.Context, id string) (*domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	delete(m.listings, id)
	return &l, nil
}

// ListAfter returns up to limit listings with id greater than afterID, in id order.
func (m *MemoryListings) ListAfter(_ context.Context, afterID string, limit int) ([]domain.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.listings))
	for id := range m.listings {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]domain.Listing, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.listings[id])
	}
	return out, nil
}
