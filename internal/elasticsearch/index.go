// Package elasticsearch adapts the listing index to the go-elasticsearch client.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/internal/domain"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
)

// ErrIndexNotFound is returned when the listing alias does not resolve.
var ErrIndexNotFound = errors.New("listing index not found")

// StatusError is a non-2xx response from Elasticsearch. The message carries
// "status NNN" so retry.DefaultIsRetryable can recognise 429 and 5xx.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elasticsearch %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// InstantReader turns a stored end_instant into an instant, or nil when it is
// absent or unreadable. *lifecycle.Classifier implements it.
type InstantReader interface {
	ReadInstant(listingID string, raw any) *time.Time
}

// ListingIndex reads and writes listing documents through an alias.
type ListingIndex struct {
	client    *es.Client
	alias     string
	indexName string
	instants  InstantReader
	log       logger.Logger
}

// NewListingIndex creates a ListingIndex. indexName is only used by EnsureIndex.
func NewListingIndex(
	client *es.Client,
	alias, indexName string,
	instants InstantReader,
	log logger.Logger,
) *ListingIndex {
	return &ListingIndex{
		client:    client,
		alias:     alias,
		indexName: indexName,
		instants:  instants,
		log:       log.With(logger.String("index_alias", alias)),
	}
}

// Alias returns the alias this index reads and writes.
func (i *ListingIndex) Alias() string {
	return i.alias
}

// Ping checks the cluster is reachable. Used by the readiness probe.
func (i *ListingIndex) Ping(ctx context.Context) error {
	res, err := i.client.Ping(i.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	return responseError("ping", res)
}

// EnsureIndex creates the concrete index with the listing mapping and points
// the alias at it. Existing indices and aliases are left untouched.
func (i *ListingIndex) EnsureIndex(ctx context.Context, shards, replicas int) error {
	aliasExists, err := i.exists("alias", func() (*esapi.Response, error) {
		return i.client.Indices.ExistsAlias([]string{i.alias}, i.client.Indices.ExistsAlias.WithContext(ctx))
	})
	if err != nil {
		return err
	}
	if aliasExists {
		return nil
	}

	indexExists, err := i.exists("index", func() (*esapi.Response, error) {
		return i.client.Indices.Exists([]string{i.indexName}, i.client.Indices.Exists.WithContext(ctx))
	})
	if err != nil {
		return err
	}

	if indexExists {
		res, putErr := i.client.Indices.PutAlias(
			[]string{i.indexName}, i.alias,
			i.client.Indices.PutAlias.WithContext(ctx),
		)
		if putErr != nil {
			return fmt.Errorf("put alias: %w", putErr)
		}
		defer res.Body.Close()
		if respErr := responseError("put alias", res); respErr != nil {
			return respErr
		}
		i.log.Info("Attached alias to existing index", logger.String("index", i.indexName))
		return nil
	}

	body := ListingMapping(shards, replicas)
	body["aliases"] = map[string]any{i.alias: map[string]any{}}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err := i.client.Indices.Create(
		i.indexName,
		i.client.Indices.Create.WithBody(bytes.NewReader(payload)),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if respErr := responseError("create index", res); respErr != nil {
		return respErr
	}

	i.log.Info("Created listing index", logger.String("index", i.indexName))
	return nil
}

func (i *ListingIndex) exists(what string, call func() (*esapi.Response, error)) (bool, error) {
	res, err := call()
	if err != nil {
		return false, fmt.Errorf("check %s existence: %w", what, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if respErr := responseError("check "+what, res); respErr != nil {
		return false, respErr
	}
	return true, nil
}

// IndexListing writes doc under its id, replacing any previous version.
func (i *ListingIndex) IndexListing(ctx context.Context, doc *domain.IndexDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal listing %s: %w", doc.ID, err)
	}

	res, err := i.client.Index(
		i.alias,
		bytes.NewReader(payload),
		i.client.Index.WithDocumentID(doc.ID),
		i.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index listing %s: %w", doc.ID, err)
	}
	defer res.Body.Close()

	return responseError("index listing", res)
}

// DeleteListing removes a listing document. A missing document is not an error.
func (i *ListingIndex) DeleteListing(ctx context.Context, id string) error {
	res, err := i.client.Delete(i.alias, id, i.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return responseError("delete listing", res)
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string            `json:"_id"`
			Score  *float64          `json:"_score"`
			Source sourceDocument    `json:"_source"`
			Sort   []json.RawMessage `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// sourceDocument reads end_instant in whatever form it was stored, since the
// mapping ignores malformed values instead of rejecting them.
type sourceDocument struct {
	domain.IndexDocument
	EndInstant any `json:"end_instant"`
}

func (i *ListingIndex) document(src sourceDocument) domain.IndexDocument {
	doc := src.IndexDocument
	doc.EndInstant = nil

	if end := i.instants.ReadInstant(doc.ID, src.EndInstant); end != nil {
		ms := end.UnixMilli()
		doc.EndInstant = &ms
	}
	return doc
}

// Search executes a ranking query. The first sort value of every hit is read
// back as the lifecycle group the hit was ordered by.
func (i *ListingIndex) Search(ctx context.Context, query map[string]any) (*domain.SearchResult, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.alias),
		i.client.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, i.alias)
	}
	if respErr := responseError("search", res); respErr != nil {
		return nil, respErr
	}

	var parsed searchResponse
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if decodeErr := dec.Decode(&parsed); decodeErr != nil {
		return nil, fmt.Errorf("decode search response: %w", decodeErr)
	}

	result := &domain.SearchResult{
		Total:  parsed.Hits.Total.Value,
		TookMs: parsed.Took,
		Hits:   make([]domain.ListingHit, 0, len(parsed.Hits.Hits)),
	}
	for _, h := range parsed.Hits.Hits {
		doc := i.document(h.Source)
		hit := domain.ListingHit{Document: doc, Group: lifecycle.Group(doc.StoredGroup)}
		if hit.Document.ID == "" {
			hit.Document.ID = h.ID
		}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		if len(h.Sort) > 0 {
			if g, ok := sortGroup(h.Sort[0]); ok {
				hit.Group = g
			}
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

// sortGroup reads the lifecycle group a hit was ordered by. A hit without a
// stored_group sorts on a sentinel that is not a group.
func sortGroup(raw json.RawMessage) (lifecycle.Group, bool) {
	var g float64
	if json.Unmarshal(raw, &g) != nil || g != math.Trunc(g) || g < 0 || g > math.MaxInt32 {
		return 0, false
	}
	group := lifecycle.Group(int(g))
	return group, group.Valid()
}

type updateByQueryResponse struct {
	Took             int64 `json:"took"`
	Total            int64 `json:"total"`
	Updated          int64 `json:"updated"`
	Noops            int64 `json:"noops"`
	VersionConflicts int64 `json:"version_conflicts"`
	Failures         []struct {
		ID    string `json:"id"`
		Cause struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"cause"`
	} `json:"failures"`
}

// ApplyPass runs one reclassify pass as an update-by-query. Version conflicts
// are counted and skipped; the index is refreshed when the pass completes.
func (i *ListingIndex) ApplyPass(ctx context.Context, b lifecycle.Bounds, target lifecycle.Group) (*domain.PassResult, error) {
	payload, err := json.Marshal(PassBody(b, target))
	if err != nil {
		return nil, fmt.Errorf("marshal pass body: %w", err)
	}

	res, err := i.client.UpdateByQuery(
		[]string{i.alias},
		i.client.UpdateByQuery.WithContext(ctx),
		i.client.UpdateByQuery.WithBody(bytes.NewReader(payload)),
		i.client.UpdateByQuery.WithConflicts("proceed"),
		i.client.UpdateByQuery.WithRefresh(true),
	)
	if err != nil {
		return nil, fmt.Errorf("update by query (%s): %w", target, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, i.alias)
	}
	if respErr := responseError("update by query", res); respErr != nil {
		return nil, respErr
	}

	var parsed updateByQueryResponse
	if decodeErr := json.NewDecoder(res.Body).Decode(&parsed); decodeErr != nil {
		return nil, fmt.Errorf("decode update by query response: %w", decodeErr)
	}

	result := &domain.PassResult{
		Group:     target,
		Total:     parsed.Total,
		Updated:   parsed.Updated,
		Noops:     parsed.Noops,
		Conflicts: parsed.VersionConflicts,
		TookMs:    parsed.Took,
	}
	for _, f := range parsed.Failures {
		result.Failures = append(result.Failures, fmt.Sprintf("%s: %s: %s", f.ID, f.Cause.Type, f.Cause.Reason))
	}
	return result, nil
}

func responseError(op string, res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &StatusError{Op: op, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
}
