// Package grammar checks query documents against the selector, extractor and
// limitor shape rules before they are compiled.
package grammar

import (
	"sort"
	"strings"

	"github.com/arthur-debert/nanoquery/nanoquery/doc"
	"github.com/arthur-debert/nanoquery/nanoquery/qerr"
	"github.com/arthur-debert/nanoquery/types"
)

// Selector is the top-level intent of a query node
type Selector int

const (
	Count Selector = iota
	Singleton
	List
)

// String returns the canonical selector key
func (s Selector) String() string {
	switch s {
	case Count:
		return "Count"
	case Singleton:
		return "Singleton"
	case List:
		return "List"
	default:
		return "unknown"
	}
}

// Keys of the extractor and limitor vocabulary
const (
	KeyInclude = "Include"
	KeyCase    = "Case"
	KeyAs      = "As"
	KeyLimit   = "Limit"
	KeyOffset  = "Offset"
	KeySortBy  = "SortBy"
	KeyOrder   = "Order"

	// KeyObject is accepted as an alias of Singleton
	KeyObject = "Object"

	countPrefix = "Count"
)

// Problem messages
const (
	msgExactlyOneSelector  = "should have exactly one of: Singleton, List, Count"
	msgExactlyOneExtractor = "should have exactly one of: Include, Case"
	msgMissingLimit        = "should have a Limit property"
	msgUnexpected          = "unexpected properties: "
)

var limitorKeys = []string{KeyLimit, KeyOffset, KeySortBy, KeyOrder}

// Match is a selector key found in a query node
type Match struct {
	Key      string
	Selector Selector

	// Table is set for the Count<Plural> shortcut whose value is the
	// criteria of that table directly
	Table *types.Table
}

// Validator validates query documents for one schema. It holds no mutable
// state and is safe for concurrent use.
type Validator struct {
	schema types.Schema
	shape  *shapeSchema
}

// New creates a validator for the tables of schema
func New(schema types.Schema) (*Validator, error) {
	shape, err := newShapeSchema()
	if err != nil {
		return nil, err
	}
	return &Validator{schema: schema, shape: shape}, nil
}

// Selectors returns the selector keys present in obj, in document order
func (v *Validator) Selectors(obj doc.Object) []Match {
	var matches []Match
	for _, key := range obj.Keys() {
		if m, ok := v.selectorKey(key); ok {
			matches = append(matches, m)
		}
	}
	return matches
}

func (v *Validator) selectorKey(key string) (Match, bool) {
	switch key {
	case "Count":
		return Match{Key: key, Selector: Count}, true
	case "Singleton", KeyObject:
		return Match{Key: key, Selector: Singleton}, true
	case "List":
		return Match{Key: key, Selector: List}, true
	}
	if strings.HasPrefix(key, countPrefix) {
		if t, ok := v.schema.ByPlural(strings.TrimPrefix(key, countPrefix)); ok {
			return Match{Key: key, Selector: Count, Table: &t}, true
		}
	}
	return Match{}, false
}

// IsSelector reports whether obj carries at least one selector key, which
// makes it a nested query rather than an Include mapping
func (v *Validator) IsSelector(obj doc.Object) bool {
	return len(v.Selectors(obj)) > 0
}

// Validate checks the whole document tree and returns every problem found.
// An empty result means the document is well formed.
func (v *Validator) Validate(node interface{}) []qerr.Problem {
	var problems []qerr.Problem
	v.validateNode(node, &problems)
	return problems
}

func (v *Validator) validateNode(node interface{}, problems *[]qerr.Problem) {
	obj, ok := node.(doc.Object)
	if !ok {
		add(problems, node, "should be a query object")
		return
	}

	matches := v.Selectors(obj)
	if len(matches) != 1 {
		add(problems, obj, msgExactlyOneSelector)
		return
	}
	m := matches[0]

	if sel, _ := obj.Get(m.Key); !isObject(sel) {
		add(problems, obj, m.Key+" should be an object")
	}

	if m.Selector == Count {
		if extra := otherKeys(obj, m.Key); len(extra) > 0 {
			add(problems, obj, msgUnexpected+strings.Join(extra, ", "))
		}
		return
	}

	allowed := map[string]bool{m.Key: true, KeyInclude: true, KeyCase: true, KeyAs: true}
	if m.Selector == List {
		for _, k := range limitorKeys {
			allowed[k] = true
		}
	}
	var extra []string
	for _, k := range obj.Keys() {
		if !allowed[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		add(problems, obj, msgUnexpected+strings.Join(extra, ", "))
	}

	extractors := 0
	for _, k := range []string{KeyInclude, KeyCase} {
		if obj.Has(k) {
			extractors++
		}
	}
	if extractors != 1 {
		add(problems, obj, msgExactlyOneExtractor)
	}

	if m.Selector == List && !obj.Has(KeyLimit) {
		add(problems, obj, msgMissingLimit)
	}

	*problems = append(*problems, v.shape.check(obj)...)

	if include, ok := obj.Get(KeyInclude); ok {
		v.validateInclude(include, problems)
	}
	if raw, ok := obj.Get(KeyCase); ok {
		branches, _ := raw.([]interface{})
		for _, b := range branches {
			if branch, ok := b.(doc.Object); ok {
				if include, ok := branch.Get(KeyInclude); ok {
					v.validateInclude(include, problems)
				}
			}
		}
	}
}

func (v *Validator) validateInclude(include interface{}, problems *[]qerr.Problem) {
	obj, ok := include.(doc.Object)
	if !ok {
		// strings are references, other types are reported by the shape schema
		return
	}
	if v.IsSelector(obj) {
		v.validateNode(obj, problems)
		return
	}
	for _, f := range obj {
		switch val := f.Value.(type) {
		case string:
		case doc.Object:
			v.validateNode(val, problems)
		default:
			add(problems, obj, "Include."+f.Key+" should be a reference string or a query object")
		}
	}
}

func add(problems *[]qerr.Problem, data interface{}, msg string) {
	*problems = append(*problems, qerr.Problem{Data: data, Problem: msg})
}

func isObject(v interface{}) bool {
	_, ok := v.(doc.Object)
	return ok
}

func otherKeys(obj doc.Object, except string) []string {
	var keys []string
	for _, k := range obj.Keys() {
		if k != except {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
