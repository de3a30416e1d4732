// Package sink persists a run's extracted price records. Every
// implementation commits a batch all-or-nothing.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pricehub/pkg/models"
)

var ErrUnknownDedupe = errors.New("unknown dedupe policy")

// Dedupe controls how repeated observations are stored.
type Dedupe string

const (
	// DedupeNone appends every record.
	DedupeNone Dedupe = "none"
	// DedupeDaily keeps the first observation of an item per store,
	// zipcode and UTC day.
	DedupeDaily Dedupe = "daily"
)

func ParseDedupe(s string) (Dedupe, error) {
	switch Dedupe(strings.ToLower(strings.TrimSpace(s))) {
	case "", DedupeNone:
		return DedupeNone, nil
	case DedupeDaily:
		return DedupeDaily, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDedupe, s)
	}
}

// Batch is the set of records produced by one run.
type Batch struct {
	RunID   string
	Records []models.PriceRecord
}

// Sink commits a batch atomically. The returned count is the number of rows
// actually written, which is lower than len(Records) when dedupe drops
// some. On error nothing from the batch is visible.
type Sink interface {
	CommitBatch(ctx context.Context, b Batch) (int, error)
}
