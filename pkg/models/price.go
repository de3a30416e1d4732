package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is the normalized, internal form of one price observation.
//
// Every grocery source is mapped into this structure by the extraction
// engine, and price history is written to the DB from this representation.
type PriceRecord struct {
	Item       string          `json:"item"`
	Price      decimal.Decimal `json:"price"`
	Unit       string          `json:"unit"`
	Store      string          `json:"store"`
	Zipcode    string          `json:"zipcode"`
	ObservedAt time.Time       `json:"observed_at"`
}

// PriceDay is the calendar day (UTC) used by the daily dedupe policy.
func (r PriceRecord) PriceDay() string {
	return r.ObservedAt.UTC().Format("2006-01-02")
}

// PriceRow is a stored price-history row as returned by read queries.
type PriceRow struct {
	ID int64 `json:"id"`
	PriceRecord
	RunID string `json:"run_id,omitempty"`
}
