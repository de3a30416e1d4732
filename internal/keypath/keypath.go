// Package keypath resolves ordered key/index paths inside decoded JSON
// documents (nested map[string]any / []any values).
//
// A Path is a list of steps. Each step is a literal object key, a literal
// array index, or the current-item placeholder, which is substituted with
// the item index supplied to Resolve. The same path mechanism works on
// arrays and objects at every level: a numeric key indexes an array and an
// index looks up the matching string key of an object.
package keypath

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrPathNotFound is returned when a step does not exist in the document.
	ErrPathNotFound = errors.New("path not found")
	// ErrEmptyPath is returned when Resolve is called with no steps.
	ErrEmptyPath = errors.New("empty path")
	// ErrInvalidStep is returned by ParsePath for unsupported step values.
	ErrInvalidStep = errors.New("invalid path step")
)

// Kind identifies the variant held by a Step.
type Kind uint8

const (
	KindKey Kind = iota
	KindIndex
	KindCurrentItem
)

// Step is one traversal step of a Path.
type Step struct {
	kind  Kind
	key   string
	index int
}

// Key returns a step that looks up an object key.
func Key(name string) Step { return Step{kind: KindKey, key: name} }

// Index returns a step that indexes an array. Negative values count from the end.
func Index(n int) Step { return Step{kind: KindIndex, index: n} }

// CurrentItem returns the placeholder step replaced by the item index at resolve time.
func CurrentItem() Step { return Step{kind: KindCurrentItem} }

func (s Step) Kind() Kind { return s.kind }

func (s Step) String() string {
	switch s.kind {
	case KindIndex:
		return "[" + strconv.Itoa(s.index) + "]"
	case KindCurrentItem:
		return "[i]"
	default:
		return s.key
	}
}

// Path is an ordered list of steps.
type Path []Step

// HasCurrentItem reports whether any step is the current-item placeholder.
func (p Path) HasCurrentItem() bool {
	for _, s := range p {
		if s.kind == KindCurrentItem {
			return true
		}
	}
	return false
}

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if s.kind == KindKey && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// PathError describes where resolution stopped. It unwraps to ErrPathNotFound.
type PathError struct {
	Path   Path
	Depth  int // index of the step that failed
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%v: %s at %s: %s", ErrPathNotFound, e.Path, e.Path[:e.Depth+1], e.Reason)
}

func (e *PathError) Unwrap() error { return ErrPathNotFound }

// Resolve walks root along path and returns the value reached. Every
// CurrentItem step is replaced with item.
func Resolve(root any, path Path, item int) (any, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}

	cur := root
	for depth, s := range path {
		var (
			next   any
			reason string
		)
		switch s.kind {
		case KindKey:
			next, reason = lookupKey(cur, s.key)
		case KindIndex:
			next, reason = lookupIndex(cur, s.index)
		case KindCurrentItem:
			next, reason = lookupIndex(cur, item)
		}
		if reason != "" {
			return nil, &PathError{Path: path, Depth: depth, Reason: reason}
		}
		cur = next
	}
	return cur, nil
}

func lookupKey(cur any, key string) (any, string) {
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[key]
		if !ok {
			return nil, fmt.Sprintf("missing key %q", key)
		}
		return v, ""
	case []any:
		n, ok := arrayKey(key)
		if !ok {
			return nil, fmt.Sprintf("key %q used on array", key)
		}
		return lookupIndex(c, n)
	default:
		return nil, fmt.Sprintf("cannot look up key %q in %s", key, kindName(cur))
	}
}

// arrayKey accepts only canonical non-negative decimals ("0", "12"); signs,
// leading zeros and blanks are not indexes.
func arrayKey(key string) (int, bool) {
	if key == "" || len(key) > 10 || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(key)
	if err != nil || n > math.MaxInt32 {
		return 0, false
	}
	return n, true
}

func lookupIndex(cur any, n int) (any, string) {
	switch c := cur.(type) {
	case []any:
		i := n
		if i < 0 {
			i += len(c)
		}
		if i < 0 || i >= len(c) {
			return nil, fmt.Sprintf("index %d out of range (len %d)", n, len(c))
		}
		return c[i], ""
	case map[string]any:
		v, ok := c[strconv.Itoa(n)]
		if !ok {
			return nil, fmt.Sprintf("missing key %q", strconv.Itoa(n))
		}
		return v, ""
	default:
		return nil, fmt.Sprintf("cannot index %s", kindName(cur))
	}
}

func kindName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64, int, int64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// ParsePath converts configuration steps into a Path. Strings equal to
// placeholder become CurrentItem, other strings become keys and integral
// numbers become indices.
func ParsePath(raw []any, placeholder string) (Path, error) {
	p := make(Path, 0, len(raw))
	for i, r := range raw {
		s, err := parseStep(r, placeholder)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		p = append(p, s)
	}
	return p, nil
}

func parseStep(r any, placeholder string) (Step, error) {
	switch v := r.(type) {
	case string:
		if placeholder != "" && v == placeholder {
			return CurrentItem(), nil
		}
		return Key(v), nil
	case int:
		return indexStep(int64(v))
	case int64:
		return indexStep(v)
	case uint64:
		if v > math.MaxInt32 {
			return Step{}, fmt.Errorf("%w: index %d too large", ErrInvalidStep, v)
		}
		return Index(int(v)), nil
	case float64:
		if v != math.Trunc(v) {
			return Step{}, fmt.Errorf("%w: non-integral index %v", ErrInvalidStep, v)
		}
		if v > math.MaxInt32 || v < -math.MaxInt32 {
			return Step{}, fmt.Errorf("%w: index %v out of range", ErrInvalidStep, v)
		}
		return Index(int(v)), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return Step{}, fmt.Errorf("%w: %s", ErrInvalidStep, v)
		}
		return indexStep(n)
	default:
		return Step{}, fmt.Errorf("%w: %T", ErrInvalidStep, r)
	}
}

// indexStep bounds explicit indexes to ±MaxInt32. Negative values count from
// the end of the array.
func indexStep(n int64) (Step, error) {
	if n > math.MaxInt32 || n < -math.MaxInt32 {
		return Step{}, fmt.Errorf("%w: index %d out of range", ErrInvalidStep, n)
	}
	return Index(int(n)), nil
}

// Raw is the inverse of ParsePath: keys become strings, indexes ints and the
// current-item step becomes placeholder.
func (p Path) Raw(placeholder string) []any {
	if len(p) == 0 {
		return nil
	}
	out := make([]any, len(p))
	for i, s := range p {
		switch s.kind {
		case KindIndex:
			out[i] = s.index
		case KindCurrentItem:
			out[i] = placeholder
		default:
			out[i] = s.key
		}
	}
	return out
}
