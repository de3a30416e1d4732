package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pricehub/internal/keypath"
)

const (
	// DefaultPlaceholder marks the current item index in catalog paths.
	DefaultPlaceholder = "$index"
	// LegacyPlaceholder is the placeholder used by apiURL catalogs.
	LegacyPlaceholder = "apiItemIndex"
)

var (
	ErrNoSources         = errors.New("catalog contains no sources")
	ErrUnsupportedFormat = errors.New("unsupported catalog format")
)

// Catalog is the ordered set of sources to ingest.
type Catalog struct {
	Sources  []Spec
	Disabled []string
}

type rawCatalog struct {
	Placeholder string         `yaml:"placeholder" json:"placeholder"`
	Sources     []rawSource    `yaml:"sources" json:"sources"`
	APIURL      []legacySource `yaml:"-" json:"apiURL"`
}

type rawSource struct {
	Name    string   `yaml:"name" json:"name"`
	Zipcode string   `yaml:"zipcode" json:"zipcode"`
	URL     string   `yaml:"url" json:"url"`
	Enabled *bool    `yaml:"enabled" json:"enabled"`
	Paths   rawPaths `yaml:"paths" json:"paths"`
}

type rawPaths struct {
	Items     []any `yaml:"items" json:"items"`
	Item      []any `yaml:"item" json:"item"`
	Unit      []any `yaml:"unit" json:"unit"`
	Price     []any `yaml:"price" json:"price"`
	SaleFlag  []any `yaml:"sale_flag" json:"sale_flag"`
	SalePrice []any `yaml:"sale_price" json:"sale_price"`
}

// legacySource is one entry of the original apiURL catalog format.
type legacySource struct {
	URL                 string          `json:"url"`
	Name                string          `json:"name"`
	ZipCode             json.RawMessage `json:"zipCode"`
	ItemArrayAccessKeys []any           `json:"itemArrayAccessKeys"`
	ItemAccessKeys      []any           `json:"itemAccessKeys"`
	PriceAccessKeys     []any           `json:"priceAccessKeys"`
	UnitAccessKeys      []any           `json:"unitAccessKeys"`
	SaleAccessKeysExist json.RawMessage `json:"saleAccessKeysExist"`
}

type legacySaleKeys struct {
	IsOnSaleAccessKeys  []any `json:"isOnSaleAccessKeys"`
	SalePriceAccessKeys []any `json:"salePriceAccessKeys"`
}

// LoadCatalog reads a catalog file. The format follows the extension:
// .yaml/.yml or .json (native or legacy apiURL layout).
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return ParseCatalog(data, "yaml")
	case ".json":
		return ParseCatalog(data, "json")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// ParseCatalog decodes catalog bytes in the given format ("yaml" or "json").
func ParseCatalog(data []byte, format string) (*Catalog, error) {
	var raw rawCatalog

	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML catalog: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if len(raw.APIURL) > 0 {
		return fromLegacy(raw.APIURL)
	}
	return fromNative(raw)
}

func fromNative(raw rawCatalog) (*Catalog, error) {
	placeholder := raw.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}

	cat := &Catalog{}
	for i, rs := range raw.Sources {
		if rs.Enabled != nil && !*rs.Enabled {
			cat.Disabled = append(cat.Disabled, rs.Name)
			continue
		}

		spec := Spec{
			Name:    strings.TrimSpace(rs.Name),
			Zipcode: strings.TrimSpace(rs.Zipcode),
			URL:     strings.TrimSpace(rs.URL),
		}
		err := parsePaths(&spec, placeholder, pathSet{
			items:     rs.Paths.Items,
			item:      rs.Paths.Item,
			unit:      rs.Paths.Unit,
			price:     rs.Paths.Price,
			saleFlag:  rs.Paths.SaleFlag,
			salePrice: rs.Paths.SalePrice,
		})
		if err != nil {
			return nil, fmt.Errorf("source[%d] %q: %w", i, rs.Name, err)
		}
		cat.Sources = append(cat.Sources, spec)
	}
	return cat, cat.validate()
}

func fromLegacy(entries []legacySource) (*Catalog, error) {
	cat := &Catalog{}
	for i, ls := range entries {
		spec := Spec{
			Name:    strings.TrimSpace(ls.Name),
			Zipcode: legacyZip(ls.ZipCode),
			URL:     strings.TrimSpace(ls.URL),
		}

		set := pathSet{
			items: ls.ItemArrayAccessKeys,
			item:  ls.ItemAccessKeys,
			unit:  ls.UnitAccessKeys,
			price: ls.PriceAccessKeys,
		}
		sale, err := legacySale(ls.SaleAccessKeysExist)
		if err != nil {
			return nil, fmt.Errorf("apiURL[%d] %q: %w", i, ls.Name, err)
		}
		if sale != nil {
			set.saleFlag = sale.IsOnSaleAccessKeys
			set.salePrice = sale.SalePriceAccessKeys
		}

		if err := parsePaths(&spec, LegacyPlaceholder, set); err != nil {
			return nil, fmt.Errorf("apiURL[%d] %q: %w", i, ls.Name, err)
		}
		cat.Sources = append(cat.Sources, spec)
	}
	return cat, cat.validate()
}

// legacySale decodes saleAccessKeysExist, which is either false or an object.
func legacySale(raw json.RawMessage) (*legacySaleKeys, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("false")) || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var keys legacySaleKeys
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&keys); err != nil {
		return nil, fmt.Errorf("saleAccessKeysExist: %w", err)
	}
	return &keys, nil
}

func legacyZip(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

type pathSet struct {
	items, item, unit, price, saleFlag, salePrice []any
}

func parsePaths(spec *Spec, placeholder string, set pathSet) error {
	targets := []struct {
		name string
		raw  []any
		dst  *keypath.Path
	}{
		{"items", set.items, &spec.ItemArray},
		{"item", set.item, &spec.Item},
		{"unit", set.unit, &spec.Unit},
		{"price", set.price, &spec.Price},
		{"sale_flag", set.saleFlag, &spec.SaleFlag},
		{"sale_price", set.salePrice, &spec.SalePrice},
	}

	for _, t := range targets {
		if len(t.raw) == 0 {
			continue
		}
		p, err := keypath.ParsePath(t.raw, placeholder)
		if err != nil {
			return fmt.Errorf("%s path: %w", t.name, err)
		}
		*t.dst = p
	}
	return spec.Validate()
}

func (c *Catalog) validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		key := s.Name + "|" + s.Zipcode
		if seen[key] {
			return fmt.Errorf("%w: %s (%s)", ErrDuplicateSource, s.Name, s.Zipcode)
		}
		seen[key] = true
	}
	return nil
}

type outSource struct {
	Name    string   `yaml:"name"`
	Zipcode string   `yaml:"zipcode,omitempty"`
	URL     string   `yaml:"url"`
	Paths   outPaths `yaml:"paths"`
}

type outPaths struct {
	Items     []any `yaml:"items,flow"`
	Item      []any `yaml:"item,flow"`
	Unit      []any `yaml:"unit,flow,omitempty"`
	Price     []any `yaml:"price,flow"`
	SaleFlag  []any `yaml:"sale_flag,flow,omitempty"`
	SalePrice []any `yaml:"sale_price,flow,omitempty"`
}

// MarshalCatalog encodes specs in the native YAML layout. Legacy catalogs
// round-trip through it into the native form.
func MarshalCatalog(specs []Spec) ([]byte, error) {
	out := struct {
		Sources []outSource `yaml:"sources"`
	}{}
	for _, s := range specs {
		out.Sources = append(out.Sources, outSource{
			Name:    s.Name,
			Zipcode: s.Zipcode,
			URL:     s.URL,
			Paths: outPaths{
				Items:     s.ItemArray.Raw(DefaultPlaceholder),
				Item:      s.Item.Raw(DefaultPlaceholder),
				Unit:      s.Unit.Raw(DefaultPlaceholder),
				Price:     s.Price.Raw(DefaultPlaceholder),
				SaleFlag:  s.SaleFlag.Raw(DefaultPlaceholder),
				SalePrice: s.SalePrice.Raw(DefaultPlaceholder),
			},
		})
	}
	b, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}
	return b, nil
}
