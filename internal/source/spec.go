// Package source describes external grocery price APIs and loads their
// declarative shape descriptions from catalog files.
package source

import (
	"errors"
	"fmt"
	"strings"

	"pricehub/internal/keypath"
)

// Spec validation errors.
var (
	ErrMissingName        = errors.New("source name is required")
	ErrMissingURL         = errors.New("source url is required")
	ErrMissingPath        = errors.New("path is required")
	ErrItemArrayIndexed   = errors.New("items path must not contain the item placeholder")
	ErrPathNotIndexed     = errors.New("path must contain the item placeholder")
	ErrIncompleteSalePath = errors.New("sale_flag and sale_price must both be set or both be empty")
	ErrDuplicateSource    = errors.New("duplicate source name and zipcode")
)

// Spec is the immutable description of one source: where to fetch it, the
// store metadata stamped on every record, and the paths into its response.
type Spec struct {
	Name    string
	Zipcode string
	URL     string

	ItemArray keypath.Path
	Item      keypath.Path
	Unit      keypath.Path
	Price     keypath.Path

	// SaleFlag and SalePrice are both nil or both set.
	SaleFlag  keypath.Path
	SalePrice keypath.Path
}

// HasSale reports whether the source declares sale fields.
func (s Spec) HasSale() bool {
	return len(s.SaleFlag) > 0 && len(s.SalePrice) > 0
}

// Validate checks the spec is complete and its paths are well formed.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(s.URL) == "" {
		return ErrMissingURL
	}

	if len(s.ItemArray) == 0 {
		return fmt.Errorf("%w: items", ErrMissingPath)
	}
	if s.ItemArray.HasCurrentItem() {
		return ErrItemArrayIndexed
	}

	indexed := map[string]keypath.Path{"item": s.Item, "unit": s.Unit, "price": s.Price}
	if (len(s.SaleFlag) == 0) != (len(s.SalePrice) == 0) {
		return ErrIncompleteSalePath
	}
	if s.HasSale() {
		indexed["sale_flag"] = s.SaleFlag
		indexed["sale_price"] = s.SalePrice
	}
	for _, name := range []string{"item", "unit", "price", "sale_flag", "sale_price"} {
		p, ok := indexed[name]
		if !ok {
			continue
		}
		if len(p) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingPath, name)
		}
		if !p.HasCurrentItem() {
			return fmt.Errorf("%w: %s", ErrPathNotIndexed, name)
		}
	}
	return nil
}

// Slug returns a filesystem and URL friendly form of the source name and zipcode.
func (s Spec) Slug() string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s.Name + " " + s.Zipcode)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteRune('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "source"
	}
	return out
}
