// Package ref implements reference strings: the paths used inside Include
// mappings and criteria values to read columns and JSON attributes of the
// current row, or fields of an enclosing query node's row.
//
// Surface syntax, parsed once at compile time:
//
//	name            column of the current row
//	attribute.x.y   key path into the current row's attributes blob
//	alias.path      path on the row of the ancestor bound to alias
//	^path           path on the nearest ancestor, each extra ^ climbs a level
//
// The alias form is canonical; ^ is sugar that the parser rewrites to the
// alias of the ancestor it denotes.
package ref

import (
	"errors"
	"strconv"
	"strings"

	"github.com/arthur-debert/nanoquery/types"
)

var (
	// ErrUnknownAncestor is returned for alias.path with an alias no
	// enclosing node binds
	ErrUnknownAncestor = errors.New("unknown ancestor")

	// ErrNoAncestor is returned for ^path that climbs above the root
	ErrNoAncestor = errors.New("back-reference climbs above the root query")

	// ErrUnknownColumn is returned for a plain name that is no column
	ErrUnknownColumn = errors.New("unknown key")

	// ErrEmpty is returned for an empty reference or empty segment
	ErrEmpty = errors.New("empty reference")
)

// Reference is a parsed reference: Column, Attribute or AncestorField
type Reference interface {
	// String returns the canonical spelling
	String() string
	isReference()
}

// Column reads a column of the current row. A non-empty Path descends into
// the column value when it holds a JSON container.
type Column struct {
	Name string
	Path []string
}

// Attribute reads a key path of the current row's attributes blob
type Attribute struct {
	Path []string
}

// AncestorField reads Field from the row of an enclosing node. Depth is the
// distance to that node: 1 is the immediate parent.
type AncestorField struct {
	Alias string
	Depth int
	Field Reference
}

func (Column) isReference()        {}
func (Attribute) isReference()     {}
func (AncestorField) isReference() {}

func (c Column) String() string {
	return strings.Join(append([]string{c.Name}, c.Path...), ".")
}

func (a Attribute) String() string {
	return types.AttributesPath + "." + strings.Join(a.Path, ".")
}

func (a AncestorField) String() string {
	return a.Alias + "." + a.Field.String()
}

// IsBackReference reports whether s uses one of the back-reference forms
// given the aliases in scope. Criteria values use it to tell references
// from literal strings.
func IsBackReference(s string, scope Scope) bool {
	if strings.HasPrefix(s, "^") {
		return true
	}
	head, _, dotted := strings.Cut(s, ".")
	if !dotted {
		return false
	}
	_, _, ok := scope.Lookup(head)
	return ok
}

// Parse parses s as a reference against the current table and the enclosing
// scope. Unknown columns and aliases are reported here, never at execution.
func Parse(s string, table types.Table, scope Scope) (Reference, error) {
	if s == "" {
		return nil, ErrEmpty
	}

	if strings.HasPrefix(s, "^") {
		depth := len(s) - len(strings.TrimLeft(s, "^"))
		rest := s[depth:]
		frame, ok := scope.At(depth)
		if !ok {
			return nil, errorf(ErrNoAncestor, s)
		}
		field, err := parseLocal(rest, frame.Table)
		if err != nil {
			return nil, err
		}
		return AncestorField{Alias: frame.Alias(), Depth: depth, Field: field}, nil
	}

	segments := strings.Split(s, ".")
	if len(segments) > 1 {
		if depth, frame, ok := scope.Lookup(segments[0]); ok {
			field, err := parseLocal(strings.Join(segments[1:], "."), frame.Table)
			if err != nil {
				return nil, err
			}
			return AncestorField{Alias: segments[0], Depth: depth, Field: field}, nil
		}
	}

	local, err := parseLocal(s, table)
	if err != nil {
		if len(segments) > 1 && errors.Is(err, ErrUnknownColumn) {
			return nil, errorf(ErrUnknownAncestor, segments[0])
		}
		return nil, err
	}
	return local, nil
}

// parseLocal parses a column or attribute path of a row of table
func parseLocal(s string, table types.Table) (Reference, error) {
	if s == "" {
		return nil, ErrEmpty
	}
	segments := strings.Split(s, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, errorf(ErrEmpty, s)
		}
	}

	head, path := segments[0], segments[1:]
	if head == types.AttributesPath || head == types.ColAttributes {
		if len(path) == 0 {
			return Column{Name: types.ColAttributes}, nil
		}
		return Attribute{Path: path}, nil
	}
	if _, ok := table.Column(head); !ok {
		return nil, errorf(ErrUnknownColumn, head)
	}
	if len(path) == 0 {
		return Column{Name: head}, nil
	}
	return Column{Name: head, Path: path}, nil
}

// Resolve binds r against the current row and its ancestry. Missing
// intermediate segments resolve to nil.
func Resolve(r Reference, row types.Row, ancestry Ancestry) interface{} {
	switch x := r.(type) {
	case Column:
		if row == nil {
			return nil
		}
		return descend(row[x.Name], x.Path)
	case Attribute:
		if row == nil {
			return nil
		}
		return descend(row.Attributes(), x.Path)
	case AncestorField:
		entry, ok := ancestry.At(x.Depth)
		if !ok {
			return nil
		}
		return Resolve(x.Field, entry.Row, nil)
	default:
		return nil
	}
}

func descend(v interface{}, path []string) interface{} {
	for _, seg := range path {
		switch c := v.(type) {
		case map[string]interface{}:
			v = c[seg]
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil
			}
			v = c[i]
		default:
			return nil
		}
	}
	return types.Normalize(v)
}

type refError struct {
	kind error
	name string
}

func (e *refError) Error() string { return e.kind.Error() + " " + e.name }
func (e *refError) Unwrap() error { return e.kind }

func errorf(kind error, name string) error {
	return &refError{kind: kind, name: name}
}
