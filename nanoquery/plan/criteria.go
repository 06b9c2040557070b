package plan

import (
	"math"
	"strings"
	"time"

	"github.com/arthur-debert/nanoquery/nanoquery/doc"
	"github.com/arthur-debert/nanoquery/nanoquery/qerr"
	"github.com/arthur-debert/nanoquery/nanoquery/ref"
	"github.com/arthur-debert/nanoquery/types"
)

// Keys of an operator criterion: {"operator": "gt", "value": 3}
const (
	keyOperator = "operator"
	keyValue    = "value"
	keyUnit     = "unit"

	opNewerThan = "newerThan"
	opOlderThan = "olderThan"
)

var operators = map[string]types.Op{
	"eq":  types.OpEq,
	"ne":  types.OpNe,
	"gt":  types.OpGt,
	"gte": types.OpGte,
	"lt":  types.OpLt,
	"lte": types.OpLte,
	"in":  types.OpIn,
}

var units = map[string]time.Duration{
	"seconds": time.Second,
	"minutes": time.Minute,
	"hours":   time.Hour,
	"days":    24 * time.Hour,
	"daysAgo": 24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

const defaultUnit = "days"

// compileCriteria compiles the criteria object of a selector. References in
// criteria values bind against the enclosing scope only.
func (c *Compiler) compileCriteria(obj, criteria doc.Object, table types.Table, scope ref.Scope) (Selection, error) {
	sel := Selection{Table: table, Source: obj}
	for _, f := range criteria {
		head, _, _ := strings.Cut(f.Key, ".")
		if head == types.AttributesPath || head == types.ColAttributes {
			return Selection{}, qerr.NewParseError(obj, criteria, "attribute matching not implemented")
		}
		col, ok := table.Column(f.Key)
		if !ok {
			return Selection{}, qerr.NewParseError(obj, criteria, "unknown key %s", f.Key)
		}
		if col.Name == types.ColDeleted {
			sel.IncludeDeleted = true
		}

		filter, err := c.compileFilter(obj, col, f.Value, scope)
		if err != nil {
			return Selection{}, err
		}
		sel.Filters = append(sel.Filters, filter)
	}
	return sel, nil
}

func (c *Compiler) compileFilter(obj doc.Object, col types.Column, value interface{}, scope ref.Scope) (Filter, error) {
	if op, ok := value.(doc.Object); ok {
		return c.compileOperator(obj, col, op, scope)
	}
	return c.compileValue(obj, col, types.OpEq, value, scope)
}

// compileValue compiles a plain criterion value: a back-reference, a list
// (shorthand for in) or a literal
func (c *Compiler) compileValue(obj doc.Object, col types.Column, op types.Op, value interface{}, scope ref.Scope) (Filter, error) {
	switch v := value.(type) {
	case string:
		if ref.IsBackReference(v, scope) {
			r, err := ref.Parse(v, types.Table{}, scope)
			if err != nil {
				return Filter{}, qerr.NewParseError(obj, v, "%s", err.Error())
			}
			return Filter{Column: col.Name, Op: op, Ref: r}, nil
		}
	case []interface{}:
		if op != types.OpEq && op != types.OpIn && op != types.OpNe {
			return Filter{}, qerr.NewParseError(obj, value, "%s does not accept a list value", col.Name)
		}
		for _, item := range v {
			if _, nested := item.(doc.Object); nested {
				return Filter{}, qerr.NewParseError(obj, value, "values of %s should be literals", col.Name)
			}
		}
		if op == types.OpEq {
			op = types.OpIn
		}
		return Filter{Column: col.Name, Op: op, Value: v}, nil
	case doc.Object:
		return Filter{}, qerr.NewParseError(obj, value, "value of %s should be a literal", col.Name)
	}
	if op == types.OpIn {
		return Filter{}, qerr.NewParseError(obj, value, "in expects a list value for %s", col.Name)
	}
	return Filter{Column: col.Name, Op: op, Value: types.Normalize(value)}, nil
}

func (c *Compiler) compileOperator(obj doc.Object, col types.Column, crit doc.Object, scope ref.Scope) (Filter, error) {
	for _, k := range crit.Keys() {
		if k != keyOperator && k != keyValue && k != keyUnit {
			return Filter{}, qerr.NewParseError(obj, crit, "unknown key %s in criterion %s", k, col.Name)
		}
	}
	raw, _ := crit.Get(keyOperator)
	name, _ := raw.(string)
	value, hasValue := crit.Get(keyValue)
	if !hasValue {
		return Filter{}, qerr.NewParseError(obj, crit, "criterion %s should have a value", col.Name)
	}

	switch name {
	case opNewerThan, opOlderThan:
		return compileWindow(obj, col, crit, name == opNewerThan, value)
	}

	op, ok := operators[name]
	if !ok {
		return Filter{}, qerr.NewParseError(obj, crit, "unknown operator %q", name)
	}
	if crit.Has(keyUnit) {
		return Filter{}, qerr.NewParseError(obj, crit, "unit is only valid with %s and %s", opNewerThan, opOlderThan)
	}
	return c.compileValue(obj, col, op, value, scope)
}

func compileWindow(obj doc.Object, col types.Column, crit doc.Object, newer bool, value interface{}) (Filter, error) {
	if !strings.HasSuffix(col.Name, "_epoch") {
		return Filter{}, qerr.NewParseError(obj, crit, "%s is not an epoch column", col.Name)
	}
	n, ok := types.AsInt(value)
	if !ok || n < 0 {
		return Filter{}, qerr.NewParseError(obj, crit, "value of %s should be a non-negative integer", col.Name)
	}
	unitName := defaultUnit
	if raw, ok := crit.Get(keyUnit); ok {
		unitName, _ = raw.(string)
	}
	unit, ok := units[unitName]
	if !ok {
		return Filter{}, qerr.NewParseError(obj, crit, "unknown unit %q", unitName)
	}
	if n > math.MaxInt64/int64(unit) {
		return Filter{}, qerr.NewParseError(obj, crit, "value of %s is too large for unit %s", col.Name, unitName)
	}
	return Filter{
		Column: col.Name,
		Window: &Window{Newer: newer, Span: time.Duration(n) * unit},
	}, nil
}
