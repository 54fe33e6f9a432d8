// Package testhelpers provides in-memory stand-ins for the listing stores.
package testhelpers

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jonesrussell/north-cloud/listings/internal/domain"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
)

type versionedDoc struct {
	doc     domain.IndexDocument
	version int64
}

// MemoryIndex is an in-memory listing index. ApplyPass follows the
// update-by-query contract: documents are selected first, then updated one
// by one, and a document whose version changed in between is skipped as a
// version conflict.
type MemoryIndex struct {
	mu         sync.Mutex
	docs       map[string]*versionedDoc
	writes     int
	passErrors map[lifecycle.Group]error
	indexErrs  []error

	// BeforeUpdate, when set, runs after selection and before each
	// document is updated, without the index lock held.
	BeforeUpdate func(id string)
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		docs:       make(map[string]*versionedDoc),
		passErrors: make(map[lifecycle.Group]error),
	}
}

// Seed stores documents without counting them as writes.
func (m *MemoryIndex) Seed(docs ...domain.IndexDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.docs[d.ID] = &versionedDoc{doc: d, version: 1}
	}
}

// FailPass makes every ApplyPass for g return err. A nil err clears it.
func (m *MemoryIndex) FailPass(g lifecycle.Group, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.passErrors, g)
		return
	}
	m.passErrors[g] = err
}

// FailNextIndexWrites queues errors returned by the next IndexListing calls.
func (m *MemoryIndex) FailNextIndexWrites(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexErrs = append(m.indexErrs, errs...)
}

// Writes returns the number of document writes and deletes applied.
func (m *MemoryIndex) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Get returns a copy of a stored document.
func (m *MemoryIndex) Get(id string) (domain.IndexDocument, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return domain.IndexDocument{}, false
	}
	return d.doc, true
}

// Len returns the number of stored documents.
func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// IndexListing stores doc, bumping its version.
func (m *MemoryIndex) IndexListing(ctx context.Context, doc *domain.IndexDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.indexErrs) > 0 {
		err := m.indexErrs[0]
		m.indexErrs = m.indexErrs[1:]
		return err
	}

	current, ok := m.docs[doc.ID]
	if !ok {
		current = &versionedDoc{}
		m.docs[doc.ID] = current
	}
	current.doc = *doc
	current.version++
	m.writes++
	return nil
}

// DeleteListing removes a document. Missing documents are ignored.
func (m *MemoryIndex) DeleteListing(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; ok {
		delete(m.docs, id)
		m.writes++
	}
	return nil
}

// ApplyPass reclassifies every document in target's window whose stored
// group differs from target.
func (m *MemoryIndex) ApplyPass(ctx context.Context, b lifecycle.Bounds, target lifecycle.Group) (*domain.PassResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type selection struct {
		id      string
		version int64
	}

	m.mu.Lock()
	if err := m.passErrors[target]; err != nil {
		m.mu.Unlock()
		return nil, err
	}
	window := b.Window(target)
	var selected []selection
	for id, d := range m.docs {
		end, present := endOf(d.doc)
		if window.Contains(end, present) && d.doc.StoredGroup != int(target) {
			selected = append(selected, selection{id: id, version: d.version})
		}
	}
	m.mu.Unlock()

	sort.Slice(selected, func(i, j int) bool { return selected[i].id < selected[j].id })
	result := &domain.PassResult{Group: target, Total: int64(len(selected))}

	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(errors.New("pass interrupted"), err)
		}
		if m.BeforeUpdate != nil {
			m.BeforeUpdate(s.id)
		}
		m.updateSelected(b, target, s.id, s.version, result)
	}
	return result, nil
}

func (m *MemoryIndex) updateSelected(b lifecycle.Bounds, target lifecycle.Group, id string, version int64, result *domain.PassResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[id]
	if !ok || d.version != version {
		result.Conflicts++
		return
	}

	end, present := endOf(d.doc)
	c := b.ClassifyMillis(end, present)
	if c.Group != target {
		result.Noops++
		return
	}

	d.doc.StoredGroup = int(c.Group)
	d.doc.StoredSortKey = c.SortKey
	d.doc.ClassifiedAt = b.Now
	d.version++
	m.writes++
	result.Updated++
}

func endOf(doc domain.IndexDocument) (int64, bool) {
	if doc.EndInstant == nil {
		return 0, false
	}
	return *doc.EndInstant, true
}
