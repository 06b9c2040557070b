// Package plan compiles validated query documents into immutable execution
// plans.
//
// A plan is a tree of Count, Singleton and List nodes. Every reference string
// of the document is parsed once here into a ref.Reference; nothing is
// re-parsed while executing.
package plan

import (
	"time"

	"github.com/arthur-debert/nanoquery/nanoquery/doc"
	"github.com/arthur-debert/nanoquery/nanoquery/ref"
	"github.com/arthur-debert/nanoquery/types"
)

// Node is a compiled query node: *Count, *Singleton or *List
type Node interface {
	// Query returns the document the node was compiled from
	Query() doc.Object
	isNode()
}

// Selection is the part shared by all nodes: which rows of which table
type Selection struct {
	Table          types.Table
	Filters        []Filter
	IncludeDeleted bool
	Source         doc.Object
}

// Query returns the document the node was compiled from
func (s *Selection) Query() doc.Object { return s.Source }

// Predicate binds the filters against the ancestry of the executing node.
// now anchors relative time windows.
func (s *Selection) Predicate(community interface{}, ancestry ref.Ancestry, now time.Time) types.Predicate {
	conds := make([]types.Condition, len(s.Filters))
	for i, f := range s.Filters {
		conds[i] = f.Bind(ancestry, now)
	}
	return types.Predicate{
		Community:      community,
		Conditions:     conds,
		IncludeDeleted: s.IncludeDeleted,
	}
}

// Count counts the selected rows
type Count struct {
	Selection
}

// Singleton extracts a single row
type Singleton struct {
	Selection
	Names   []string
	Extract Extractor
}

// Alias returns the canonical ancestor alias of the node
func (s *Singleton) Alias() string { return s.Names[0] }

// List extracts a sorted page of rows
type List struct {
	Selection
	Names   []string
	Extract Extractor
	Sort    []types.Sort
	Limit   int
	Offset  int
}

// Alias returns the canonical ancestor alias of the node
func (l *List) Alias() string { return l.Names[0] }

func (*Count) isNode()     {}
func (*Singleton) isNode() {}
func (*List) isNode()      {}

// Filter is a compiled criterion. Exactly one of Value, Ref and Window
// supplies the compared value.
type Filter struct {
	Column string
	Op     types.Op
	Value  interface{}
	Ref    ref.Reference
	Window *Window
}

// Bind produces the store condition for the given ancestry
func (f Filter) Bind(ancestry ref.Ancestry, now time.Time) types.Condition {
	switch {
	case f.Ref != nil:
		return types.Condition{Column: f.Column, Op: f.Op, Value: ref.Resolve(f.Ref, nil, ancestry)}
	case f.Window != nil:
		return f.Window.condition(f.Column, now)
	default:
		return types.Condition{Column: f.Column, Op: f.Op, Value: f.Value}
	}
}

// Window is a relative time criterion over an epoch column (seconds)
type Window struct {
	// Newer selects rows after now-Span, otherwise rows before it
	Newer bool
	Span  time.Duration
}

func (w Window) condition(column string, now time.Time) types.Condition {
	threshold := now.Add(-w.Span).Unix()
	if w.Newer {
		return types.Condition{Column: column, Op: types.OpGt, Value: threshold}
	}
	return types.Condition{Column: column, Op: types.OpLt, Value: threshold}
}

// Extractor shapes the rows of a Singleton or List: Yield, Fields or Case
type Extractor interface {
	isExtractor()
}

// Producer computes one output value: a reference or a child plan
type Producer struct {
	Ref   ref.Reference
	Child Node
}

// Yield outputs a single value per row instead of an object
type Yield struct {
	Producer Producer
}

// Field is one output key of a Fields extractor
type Field struct {
	Key      string
	Producer Producer
}

// Fields outputs an object with keys in declaration order
type Fields []Field

// Match is one equality test of a Case branch
type Match struct {
	Ref   ref.Reference
	Value interface{}
}

// Branch is a Case alternative; a branch without matches always applies
type Branch struct {
	Matches []Match
	Extract Extractor
}

// Case outputs the extraction of the first branch whose matches hold
type Case []Branch

func (Yield) isExtractor()  {}
func (Fields) isExtractor() {}
func (Case) isExtractor()   {}
