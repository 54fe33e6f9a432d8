// Package api exposes the listing write path, the search read path and the
// reclassifier trigger over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/internal/domain"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/listings/internal/reclassify"
)

// ListingStore is the primary store of listings.
type ListingStore interface {
	Create(ctx context.Context, l *domain.Listing) error
	Update(ctx context.Context, l *domain.Listing) error
	Delete(ctx context.Context, id string) (*domain.Listing, error)
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
}

// ChangeSink receives committed primary-store changes.
type ChangeSink interface {
	Enqueue(evt domain.ChangeEvent)
}

// Searcher runs listing searches.
type Searcher interface {
	Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchResponse, error)
}

// Reclassifier runs one batch reclassification.
type Reclassifier interface {
	RunOnce(ctx context.Context) (*reclassify.Report, error)
}

// Handler holds HTTP request handlers.
type Handler struct {
	listings     ListingStore
	changes      ChangeSink
	search       Searcher
	reclassifier Reclassifier
	logger       logger.Logger
}

// NewHandler creates a new handler instance.
func NewHandler(
	listings ListingStore,
	changes ChangeSink,
	search Searcher,
	reclassifier Reclassifier,
	log logger.Logger,
) *Handler {
	return &Handler{
		listings:     listings,
		changes:      changes,
		search:       search,
		reclassifier: reclassifier,
		logger:       log,
	}
}

// CreateListing commits a listing and hands the change to the synchronizer.
func (h *Handler) CreateListing(c *gin.Context) {
	var in domain.ListingInput
	if !h.bindListing(c, &in) {
		return
	}

	var l domain.Listing
	in.Apply(&l)
	if err := h.listings.Create(c.Request.Context(), &l); err != nil {
		h.respondError(c, "Failed to create listing", err)
		return
	}

	h.changes.Enqueue(domain.NewChangeEvent(domain.OpCreate, &l))
	c.JSON(http.StatusCreated, l)
}

// UpdateListing overwrites a listing.
func (h *Handler) UpdateListing(c *gin.Context) {
	var in domain.ListingInput
	if !h.bindListing(c, &in) {
		return
	}

	l := domain.Listing{ID: c.Param("id")}
	in.Apply(&l)
	if err := h.listings.Update(c.Request.Context(), &l); err != nil {
		h.respondError(c, "Failed to update listing", err)
		return
	}

	h.changes.Enqueue(domain.NewChangeEvent(domain.OpUpdate, &l))
	c.JSON(http.StatusOK, l)
}

// DeleteListing removes a listing.
func (h *Handler) DeleteListing(c *gin.Context) {
	l, err := h.listings.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to delete listing", err)
		return
	}

	h.changes.Enqueue(domain.NewChangeEvent(domain.OpDelete, l))
	c.Status(http.StatusNoContent)
}

// GetListing returns one listing from the primary store.
func (h *Handler) GetListing(c *gin.Context) {
	l, err := h.listings.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to get listing", err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// Search handles listing searches from query parameters.
func (h *Handler) Search(c *gin.Context) {
	req, err := parseSearchParams(c)
	if err != nil {
		h.respondError(c, "Invalid search parameters", err)
		return
	}

	result, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Search failed", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Reclassify runs the batch reclassifier once and returns its report.
func (h *Handler) Reclassify(c *gin.Context) {
	report, err := h.reclassifier.RunOnce(c.Request.Context())
	if err != nil && report == nil {
		h.respondError(c, "Reclassify run failed", err)
		return
	}

	status := http.StatusOK
	switch {
	case report.Skipped:
		status = http.StatusConflict
	case err != nil:
		status = http.StatusMultiStatus
	}
	c.JSON(status, report)
}

func (h *Handler) bindListing(c *gin.Context, in *domain.ListingInput) bool {
	if err := c.ShouldBindJSON(in); err != nil {
		h.respondError(c, "Invalid listing body", fmt.Errorf("%w: %w", domain.ErrInvalidListing, err))
		return false
	}
	if err := in.Validate(); err != nil {
		h.respondError(c, "Invalid listing body", err)
		return false
	}
	return true
}

// parseSearchParams reads q, category, region, status, end_from, end_to,
// group, page, size and mode.
func parseSearchParams(c *gin.Context) (*domain.SearchRequest, error) {
	req := &domain.SearchRequest{
		Query:  strings.TrimSpace(c.Query("q")),
		Region: c.Query("region"),
		Status: c.Query("status"),
		Mode:   domain.SortMode(c.Query("mode")),
	}

	for _, raw := range c.QueryArray("category") {
		for _, cat := range strings.Split(raw, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				req.Categories = append(req.Categories, cat)
			}
		}
	}

	var err error
	if req.Page, err = intParam(c, "page"); err != nil {
		return nil, err
	}
	if req.Size, err = intParam(c, "size"); err != nil {
		return nil, err
	}
	if req.EndFrom, err = instantParam(c, "end_from"); err != nil {
		return nil, err
	}
	if req.EndTo, err = instantParam(c, "end_to"); err != nil {
		return nil, err
	}

	if raw := c.Query("group"); raw != "" {
		g, parseErr := lifecycle.ParseGroup(raw)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, parseErr)
		}
		req.Group = &g
	}

	return req, nil
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidRequest, name)
	}
	return n, nil
}

func instantParam(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := lifecycle.ParseInstant(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidRequest, name, err)
	}
	return t, nil
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status, code := classifyError(err)
	body := ErrorResponse{Error: err.Error(), Code: code, Timestamp: time.Now().UTC()}

	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, logger.Error(err), logger.String("path", c.FullPath()))
		body.Error = "temporarily unavailable, retry later"
	} else {
		h.logger.Warn(msg, logger.Error(err), logger.String("path", c.FullPath()))
	}

	c.JSON(status, body)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidListing):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, domain.ErrListingNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "TIMEOUT"
	default:
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	}
}
