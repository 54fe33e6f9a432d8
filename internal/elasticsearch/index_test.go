package elasticsearch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/listings/internal/domain"
	"github.com/jonesrussell/north-cloud/listings/internal/elasticsearch"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/listings/internal/testhelpers"
)

// mockTransport implements http.RoundTripper for mocking Elasticsearch responses.
type mockTransport struct {
	mu          sync.Mutex
	requests    []recordedRequest
	RoundTripFn func(req *http.Request) (*http.Response, error)
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	t.mu.Lock()
	t.requests = append(t.requests, recordedRequest{
		Method: req.Method, Path: req.URL.Path, Query: req.URL.RawQuery, Body: body,
	})
	t.mu.Unlock()
	return t.RoundTripFn(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"X-Elastic-Product": []string{"Elasticsearch"}},
	}
}

func newIndex(t *testing.T, fn func(req *http.Request) (*http.Response, error)) (*elasticsearch.ListingIndex, *mockTransport) {
	t.Helper()
	return newIndexLogging(t, logger.NewNop(), fn)
}

func newIndexLogging(
	t *testing.T,
	log logger.Logger,
	fn func(req *http.Request) (*http.Response, error),
) (*elasticsearch.ListingIndex, *mockTransport) {
	t.Helper()
	transport := &mockTransport{RoundTripFn: fn}
	client, err := es.NewClient(es.Config{Transport: transport})
	require.NoError(t, err)

	loc, err := lifecycle.ParseZone("+09:00")
	require.NoError(t, err)
	classifier, err := lifecycle.NewClassifier(loc, nil, log)
	require.NoError(t, err)

	return elasticsearch.NewListingIndex(client, "listings", "listings_v1", classifier, log), transport
}

func testBounds(t *testing.T) lifecycle.Bounds {
	t.Helper()
	loc, err := lifecycle.ParseZone("+09:00")
	require.NoError(t, err)
	b, err := lifecycle.NewBounds(time.Date(2026, 3, 11, 10, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	return b
}

func TestApplyPass_RequestShape(t *testing.T) {
	idx, transport := newIndex(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"took":12,"total":3,"updated":2,"noops":0,"version_conflicts":1,"failures":[]}`), nil
	})
	b := testBounds(t)

	result, err := idx.ApplyPass(context.Background(), b, lifecycle.Expired)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.Total)
	assert.Equal(t, int64(2), result.Updated)
	assert.Equal(t, int64(1), result.Conflicts)
	assert.Equal(t, lifecycle.Expired, result.Group)

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]
	assert.Equal(t, "/listings/_update_by_query", req.Path)
	assert.Contains(t, req.Query, "conflicts=proceed")
	assert.Contains(t, req.Query, "refresh=true")

	var body map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &body))
	filter := body["query"].(map[string]any)["bool"].(map[string]any)
	mustNot := filter["must_not"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(lifecycle.Expired), mustNot["term"].(map[string]any)["stored_group"])

	rng := filter["filter"].([]any)[0].(map[string]any)["range"].(map[string]any)["end_instant"].(map[string]any)
	assert.Equal(t, float64(b.Now-1), rng["lte"])
	assert.NotContains(t, rng, "gte")

	script := body["script"].(map[string]any)
	assert.Equal(t, lifecycle.ReclassifyScript, script["source"])
	assert.Equal(t, float64(lifecycle.Expired), script["params"].(map[string]any)["target"])
}

func TestApplyPass_PerpetualUsesMissingFilter(t *testing.T) {
	q := elasticsearch.PassQuery(testBounds(t), lifecycle.Perpetual)
	raw, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bool":{
		"filter":[{"bool":{"must_not":[{"exists":{"field":"end_instant"}}]}}],
		"must_not":[{"term":{"stored_group":2}}]}}`, string(raw))
}

func TestApplyPass_ReportsFailuresAndErrors(t *testing.T) {
	idx, _ := newIndex(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"took":1,"total":1,"updated":0,"failures":[{"id":"a","cause":{"type":"script_exception","reason":"boom"}}]}`), nil
	})
	result, err := idx.ApplyPass(context.Background(), testBounds(t), lifecycle.Future)
	require.NoError(t, err)
	assert.Equal(t, []string{"a: script_exception: boom"}, result.Failures)

	unavailable, _ := newIndex(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusServiceUnavailable, `{"error":"unavailable"}`), nil
	})
	_, err = unavailable.ApplyPass(context.Background(), testBounds(t), lifecycle.Future)
	var statusErr *elasticsearch.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, retry.DefaultIsRetryable(err))
}

func TestIndexListing(t *testing.T) {
	idx, transport := newIndex(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusCreated, `{"result":"created"}`), nil
	})
	end := int64(1773210600000)
	doc := &domain.IndexDocument{ID: "abc", Title: "Cleanup", EndInstant: &end, StoredGroup: 1, StoredSortKey: end}

	require.NoError(t, idx.IndexListing(context.Background(), doc))
	require.Len(t, transport.requests, 1)
	assert.Equal(t, http.MethodPut, transport.requests[0].Method)
	assert.Equal(t, "/listings/_doc/abc", transport.requests[0].Path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(transport.requests[0].Body, &body))
	assert.Equal(t, float64(end), body["end_instant"])
	assert.Equal(t, float64(1), body["stored_group"])
}

func TestIndexListing_PerpetualWritesNullEnd(t *testing.T) {
	idx, transport := newIndex(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"result":"updated"}`), nil
	})
	doc := &domain.IndexDocument{ID: "p", StoredGroup: 2, StoredSortKey: lifecycle.PerpetualSortKey}
	require.NoError(t, idx.IndexListing(context.Background(), doc))
	assert.Contains(t, string(transport.requests[0].Body), `"end_instant":null`)
}

func TestDeleteListing_NotFoundIsSuccess(t *testing.T) {
	idx, _ := newIndex(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusNotFound, `{"result":"not_found"}`), nil
	})
	require.NoError(t, idx.DeleteListing(context.Background(), "gone"))
}

func TestSearch_DecodesHitsAndGroup(t *testing.T) {
	idx, transport := newIndex(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{
			"took": 4,
			"hits": {
				"total": {"value": 2},
				"hits": [
					{"_id": "a", "_score": null, "_source": {"id": "a", "title": "A", "stored_group": 1}, "sort": [0.0, 1700000000000, "a"]},
					{"_id": "b", "_score": null, "_source": {"title": "B", "stored_group": 3}, "sort": [3, 1690000000000, "b"]}
				]
			}
		}`), nil
	})

	result, err := idx.Search(context.Background(), map[string]any{"query": map[string]any{"match_all": map[string]any{}}})
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.Total)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, lifecycle.DueToday, result.Hits[0].Group)
	assert.Equal(t, "b", result.Hits[1].Document.ID)
	assert.Equal(t, lifecycle.Expired, result.Hits[1].Group)
	assert.Equal(t, "/listings/_search", transport.requests[0].Path)
}

func TestSearch_EndInstantForms(t *testing.T) {
	idx, _ := newIndex(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{
			"took": 1,
			"hits": {
				"total": {"value": 4},
				"hits": [
					{"_id": "ms", "_source": {"id": "ms", "end_instant": 1773241199999}},
					{"_id": "iso", "_source": {"id": "iso", "end_instant": "2026-03-11T14:59:59.999Z"}},
					{"_id": "null", "_source": {"id": "null", "end_instant": null}},
					{"_id": "bad", "_source": {"id": "bad", "end_instant": "next tuesday"}}
				]
			}
		}`), nil
	})

	result, err := idx.Search(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.Len(t, result.Hits, 4)

	require.NotNil(t, result.Hits[0].Document.EndInstant)
	assert.Equal(t, int64(1773241199999), *result.Hits[0].Document.EndInstant)
	require.NotNil(t, result.Hits[1].Document.EndInstant)
	assert.Equal(t, int64(1773241199999), *result.Hits[1].Document.EndInstant)
	assert.Nil(t, result.Hits[2].Document.EndInstant)
	assert.Nil(t, result.Hits[3].Document.EndInstant)
}

func TestSearch_UnreadableEndInstantIsLogged(t *testing.T) {
	log := testhelpers.NewRecordingLogger()
	idx, _ := newIndexLogging(t, log, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{
			"took": 1,
			"hits": {
				"total": {"value": 1},
				"hits": [{"_id": "bad", "_source": {"id": "bad", "end_instant": "next tuesday", "stored_group": 2}}]
			}
		}`), nil
	})

	result, err := idx.Search(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Nil(t, result.Hits[0].Document.EndInstant)

	warns := log.Entries("warn")
	require.Len(t, warns, 1)
	id, ok := warns[0].Field("listing_id")
	require.True(t, ok)
	assert.Equal(t, "bad", id.String)
	errField, ok := warns[0].Field("error")
	require.True(t, ok)
	assert.ErrorIs(t, errField.Interface.(error), lifecycle.ErrMalformedInstant)
}

func TestSearch_SortValueThatIsNotAGroup(t *testing.T) {
	idx, _ := newIndex(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{
			"took": 1,
			"hits": {
				"total": {"value": 4},
				"hits": [
					{"_id": "sentinel", "_source": {"id": "sentinel", "stored_group": 2}, "sort": [9223372036854775807, 1, "sentinel"]},
					{"_id": "unknown", "_source": {"id": "unknown", "stored_group": 1}, "sort": [7, 1, "unknown"]},
					{"_id": "negative", "_source": {"id": "negative", "stored_group": 3}, "sort": [-1, 1, "negative"]},
					{"_id": "fraction", "_source": {"id": "fraction", "stored_group": 0}, "sort": [1.5, 1, "fraction"]}
				]
			}
		}`), nil
	})

	result, err := idx.Search(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.Len(t, result.Hits, 4)

	assert.Equal(t, lifecycle.Perpetual, result.Hits[0].Group)
	assert.Equal(t, lifecycle.Future, result.Hits[1].Group)
	assert.Equal(t, lifecycle.Expired, result.Hits[2].Group)
	assert.Equal(t, lifecycle.DueToday, result.Hits[3].Group)
}

func TestSearch_IndexNotFound(t *testing.T) {
	idx, _ := newIndex(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusNotFound, `{"error":{"type":"index_not_found_exception"}}`), nil
	})
	_, err := idx.Search(context.Background(), map[string]any{})
	require.ErrorIs(t, err, elasticsearch.ErrIndexNotFound)
}

func TestEnsureIndex(t *testing.T) {
	t.Run("alias exists", func(t *testing.T) {
		idx, transport := newIndex(t, func(*http.Request) (*http.Response, error) {
			return respond(http.StatusOK, `{}`), nil
		})
		require.NoError(t, idx.EnsureIndex(context.Background(), 1, 0))
		require.Len(t, transport.requests, 1)
		assert.Equal(t, http.MethodHead, transport.requests[0].Method)
	})

	t.Run("creates index with alias", func(t *testing.T) {
		idx, transport := newIndex(t, func(req *http.Request) (*http.Response, error) {
			if req.Method == http.MethodHead {
				return respond(http.StatusNotFound, ``), nil
			}
			return respond(http.StatusOK, `{"acknowledged":true}`), nil
		})
		require.NoError(t, idx.EnsureIndex(context.Background(), 1, 0))
		require.Len(t, transport.requests, 3)

		create := transport.requests[2]
		assert.Equal(t, http.MethodPut, create.Method)
		assert.Equal(t, "/listings_v1", create.Path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(create.Body, &body))
		assert.Contains(t, body["aliases"], "listings")
		end := body["mappings"].(map[string]any)["properties"].(map[string]any)["end_instant"].(map[string]any)
		assert.Equal(t, true, end["ignore_malformed"])
	})

	t.Run("attaches alias to existing index", func(t *testing.T) {
		idx, transport := newIndex(t, func(req *http.Request) (*http.Response, error) {
			if req.Method == http.MethodHead && req.URL.Path == "/_alias/listings" {
				return respond(http.StatusNotFound, ``), nil
			}
			return respond(http.StatusOK, `{"acknowledged":true}`), nil
		})
		require.NoError(t, idx.EnsureIndex(context.Background(), 1, 0))
		require.Len(t, transport.requests, 3)
		assert.Equal(t, "/listings_v1/_alias/listings", transport.requests[2].Path)
	})
}

func TestWindowFilter_BoundsInclusive(t *testing.T) {
	b := testBounds(t)
	raw, err := json.Marshal(elasticsearch.WindowFilter(b.Window(lifecycle.DueToday)))
	require.NoError(t, err)

	var f struct {
		Range struct {
			EndInstant struct {
				Gte    int64  `json:"gte"`
				Lte    int64  `json:"lte"`
				Format string `json:"format"`
			} `json:"end_instant"`
		} `json:"range"`
	}
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.Equal(t, b.Now, f.Range.EndInstant.Gte)
	assert.Equal(t, b.DayEnd, f.Range.EndInstant.Lte)
	assert.Equal(t, "epoch_millis", f.Range.EndInstant.Format)
}
