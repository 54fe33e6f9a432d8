package lifecycle

import (
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
)

// Classifier binds the reference zone and a clock. It is safe for concurrent use.
type Classifier struct {
	loc *time.Location
	now func() time.Time
	log logger.Logger
}

// NewClassifier creates a classifier for loc. now defaults to time.Now.
func NewClassifier(loc *time.Location, now func() time.Time, log logger.Logger) (*Classifier, error) {
	if loc == nil {
		return nil, errors.Join(ErrInvalidZone, errors.New("no location"))
	}
	if now == nil {
		now = time.Now
	}
	return &Classifier{loc: loc, now: now, log: log}, nil
}

// Location returns the reference zone.
func (c *Classifier) Location() *time.Location {
	return c.loc
}

// Bounds snapshots the current instant and its reference-zone day.
func (c *Classifier) Bounds() (Bounds, error) {
	return NewBounds(c.now(), c.loc)
}

// ReadInstant reads a stored end instant of any representation. A value
// that cannot be read is logged and treated as absent, so the listing lands
// in Perpetual rather than Expired or Future.
func (c *Classifier) ReadInstant(listingID string, raw any) *time.Time {
	end, err := ParseInstant(raw)
	if err != nil {
		c.log.Warn("Unreadable end instant, classifying as perpetual",
			logger.String("listing_id", listingID),
			logger.Any("end_instant", raw),
			logger.Error(err),
		)
		return nil
	}
	return end
}
