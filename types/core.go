package types

import "context"

// Row is a single store row: named columns plus the JSON "attributes" blob
// decoded as map[string]interface{}
type Row map[string]interface{}

// Attributes returns the decoded attributes blob of the row, or nil
func (r Row) Attributes() map[string]interface{} {
	attrs, _ := r[ColAttributes].(map[string]interface{})
	return attrs
}

// ID returns the id column of the row
func (r Row) ID() interface{} {
	return r[ColID]
}

// Op is a comparison operator used in a Condition
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
)

// String returns the query-language spelling of the operator
func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpGt:
		return "gt"
	case OpGte:
		return "gte"
	case OpLt:
		return "lt"
	case OpLte:
		return "lte"
	case OpIn:
		return "in"
	default:
		return "unknown"
	}
}

// Condition is a single column comparison. A nil Value with OpEq matches NULL,
// with OpNe it matches NOT NULL. OpIn expects a []interface{} Value.
type Condition struct {
	Column string
	Op     Op
	Value  interface{}
}

// Predicate is a conjunction of conditions scoped to one community
type Predicate struct {
	// Community restricts rows to community_id = Community when not nil
	Community interface{}

	// Conditions are AND'ed together
	Conditions []Condition

	// IncludeDeleted disables the implicit deleted_epoch IS NULL filter
	IncludeDeleted bool
}

// Sort represents a single ORDER BY clause
type Sort struct {
	Column     string
	Descending bool
}

// Store is the relational read interface the query engine depends on.
// All methods are read-only and safe for concurrent use.
type Store interface {
	// Count returns the single value of a count query over the matching rows.
	// Implementations normally return an int64; the engine rejects anything
	// that is not an integral number.
	Count(ctx context.Context, table string, pred Predicate) (interface{}, error)

	// FindOne returns the first matching row by ascending id, or nil when no
	// row matches
	FindOne(ctx context.Context, table string, pred Predicate) (Row, error)

	// FindMany returns the matching rows ordered by sorts (id ascending breaks
	// ties), skipping offset rows and returning at most limit rows
	FindMany(ctx context.Context, table string, pred Predicate, sorts []Sort, limit, offset int) ([]Row, error)
}
