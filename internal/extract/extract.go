// Package extract turns one source's raw response body into normalized
// price records, following the paths declared in its source.Spec.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"pricehub/internal/keypath"
	"pricehub/internal/source"
	"pricehub/pkg/models"
)

var (
	ErrMalformedResponse = errors.New("malformed response")
	ErrNotAnArray        = errors.New("not an array")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidField      = errors.New("invalid field")
)

// Item-level failure reasons.
const (
	ReasonPathNotFound = "PathNotFound"
	ReasonInvalidPrice = "InvalidPrice"
	ReasonInvalidField = "InvalidField"
)

// ItemError records why one item was skipped.
type ItemError struct {
	Index int
	Field string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d %s: %v", e.Index, e.Field, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Reason classifies the failure for reporting.
func (e *ItemError) Reason() string {
	switch {
	case errors.Is(e.Err, keypath.ErrPathNotFound):
		return ReasonPathNotFound
	case errors.Is(e.Err, ErrInvalidPrice):
		return ReasonInvalidPrice
	default:
		return ReasonInvalidField
	}
}

// Result is the outcome of extracting one source. Records keep the order
// of the source array.
type Result struct {
	ItemCount int
	Records   []models.PriceRecord
	Skipped   []*ItemError
}

// Decode parses a response body into a generic document. Numbers are kept
// as json.Number so prices are not rounded through float64.
func Decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedResponse)
	}
	return doc, nil
}

// CountItems resolves the item array and returns its length.
func CountItems(doc any, path keypath.Path) (int, error) {
	v, err := keypath.Resolve(doc, path, 0)
	if err != nil {
		return 0, err
	}
	arr, ok := v.([]any)
	if !ok {
		return 0, fmt.Errorf("%w: %s resolved to %s", ErrNotAnArray, path, describe(v))
	}
	return len(arr), nil
}

// EffectivePrice applies the sale policy for item i: the sale price when the
// source declares sale fields and the item's flag is truthy, otherwise the
// listed price. A sale flag missing for this item falls back to the listed
// price.
func EffectivePrice(doc any, spec source.Spec, i int) (decimal.Decimal, error) {
	if spec.HasSale() {
		flag, err := keypath.Resolve(doc, spec.SaleFlag, i)
		switch {
		case errors.Is(err, keypath.ErrPathNotFound):
			// listed price below
		case err != nil:
			return decimal.Decimal{}, &ItemError{Index: i, Field: "sale_flag", Err: err}
		case Truthy(flag):
			v, err := keypath.Resolve(doc, spec.SalePrice, i)
			if err != nil {
				return decimal.Decimal{}, &ItemError{Index: i, Field: "sale_price", Err: err}
			}
			p, err := ToDecimal(v)
			if err != nil {
				return decimal.Decimal{}, &ItemError{Index: i, Field: "sale_price", Err: err}
			}
			return p, nil
		}
	}

	v, err := keypath.Resolve(doc, spec.Price, i)
	if err != nil {
		return decimal.Decimal{}, &ItemError{Index: i, Field: "price", Err: err}
	}
	p, err := ToDecimal(v)
	if err != nil {
		return decimal.Decimal{}, &ItemError{Index: i, Field: "price", Err: err}
	}
	return p, nil
}

// Items extracts every resolvable item of an already decoded document. An
// error is returned only when the item array itself cannot be resolved;
// per-item failures are collected in Result.Skipped.
func Items(doc any, spec source.Spec, observedAt time.Time) (*Result, error) {
	count, err := CountItems(doc, spec.ItemArray)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ItemCount: count,
		Records:   make([]models.PriceRecord, 0, count),
	}
	for i := 0; i < count; i++ {
		rec, err := item(doc, spec, i, observedAt)
		if err != nil {
			var ie *ItemError
			if !errors.As(err, &ie) {
				ie = &ItemError{Index: i, Err: err}
			}
			res.Skipped = append(res.Skipped, ie)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// Source decodes body and extracts its items.
func Source(body []byte, spec source.Spec, observedAt time.Time) (*Result, error) {
	doc, err := Decode(body)
	if err != nil {
		return nil, err
	}
	return Items(doc, spec, observedAt)
}

func item(doc any, spec source.Spec, i int, observedAt time.Time) (models.PriceRecord, error) {
	rawItem, err := keypath.Resolve(doc, spec.Item, i)
	if err != nil {
		return models.PriceRecord{}, &ItemError{Index: i, Field: "item", Err: err}
	}
	name, err := ToText(rawItem)
	if err != nil || name == "" {
		if err == nil {
			err = fmt.Errorf("%w: empty item name", ErrInvalidField)
		}
		return models.PriceRecord{}, &ItemError{Index: i, Field: "item", Err: err}
	}

	rawUnit, err := keypath.Resolve(doc, spec.Unit, i)
	if err != nil {
		return models.PriceRecord{}, &ItemError{Index: i, Field: "unit", Err: err}
	}
	unit := ""
	if rawUnit != nil {
		if unit, err = ToText(rawUnit); err != nil {
			return models.PriceRecord{}, &ItemError{Index: i, Field: "unit", Err: err}
		}
	}

	price, err := EffectivePrice(doc, spec, i)
	if err != nil {
		return models.PriceRecord{}, err
	}

	return models.PriceRecord{
		Item:       name,
		Price:      price,
		Unit:       unit,
		Store:      spec.Name,
		Zipcode:    spec.Zipcode,
		ObservedAt: observedAt,
	}, nil
}
