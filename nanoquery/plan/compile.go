package plan

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/nanoquery/internal/validation"
	"github.com/arthur-debert/nanoquery/nanoquery/doc"
	"github.com/arthur-debert/nanoquery/nanoquery/grammar"
	"github.com/arthur-debert/nanoquery/nanoquery/qerr"
	"github.com/arthur-debert/nanoquery/nanoquery/ref"
	"github.com/arthur-debert/nanoquery/types"
)

const (
	// DefaultMaxLimit caps the Limit of List nodes unless configured
	DefaultMaxLimit = 1000

	orderAscending  = "ascending"
	orderDescending = "descending"
)

// Compiler turns query documents into plans for one schema. It is immutable
// and safe for concurrent use.
type Compiler struct {
	schema    types.Schema
	validator *grammar.Validator
	maxLimit  int
}

// Option configures a Compiler
type Option func(*Compiler)

// WithMaxLimit overrides DefaultMaxLimit
func WithMaxLimit(n int) Option {
	return func(c *Compiler) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// NewCompiler creates a compiler for schema
func NewCompiler(schema types.Schema, opts ...Option) (*Compiler, error) {
	if err := validation.ValidateSchema(schema); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	v, err := grammar.New(schema)
	if err != nil {
		return nil, err
	}
	c := &Compiler{schema: schema, validator: v, maxLimit: DefaultMaxLimit}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Validator returns the grammar validator used by the compiler
func (c *Compiler) Validator() *grammar.Validator {
	return c.validator
}

// Compile validates root and compiles it. Every structural problem is
// reported as a *qerr.ParseError.
func (c *Compiler) Compile(root interface{}) (Node, error) {
	if problems := c.validator.Validate(root); len(problems) > 0 {
		return nil, &qerr.ParseError{Problems: problems, Query: root}
	}
	return c.compileNode(root.(doc.Object), ref.Scope{}, "")
}

// compileNode compiles a validated selector object. key is the Include key
// the node was declared under, empty for the root and yield shortcuts.
func (c *Compiler) compileNode(obj doc.Object, scope ref.Scope, key string) (Node, error) {
	m := c.validator.Selectors(obj)[0]
	table, criteria, err := c.selection(obj, m)
	if err != nil {
		return nil, err
	}

	sel, err := c.compileCriteria(obj, criteria, table, scope)
	if err != nil {
		return nil, err
	}

	if m.Selector == grammar.Count {
		return &Count{Selection: sel}, nil
	}

	names := bindNames(obj, table, key)
	inner := scope.Push(ref.Frame{Names: names, Table: table})
	extract, err := c.compileExtractor(obj, table, scope, inner)
	if err != nil {
		return nil, err
	}

	if m.Selector == grammar.Singleton {
		return &Singleton{Selection: sel, Names: names, Extract: extract}, nil
	}

	list := &List{Selection: sel, Names: names, Extract: extract}
	if err := c.compileLimitor(obj, table, list); err != nil {
		return nil, err
	}
	return list, nil
}

// selection finds the table and criteria named by the selector value
func (c *Compiler) selection(obj doc.Object, m grammar.Match) (types.Table, doc.Object, error) {
	raw, _ := obj.Get(m.Key)
	value := raw.(doc.Object)
	if m.Table != nil {
		return *m.Table, value, nil
	}

	kinds := c.schema.Kinds()
	if len(value) != 1 {
		return types.Table{}, nil, qerr.NewParseError(obj, value,
			"%s should name exactly one of: %s", m.Key, strings.Join(kinds, ", "))
	}
	kind := value[0].Key
	table, ok := c.schema.ByKind(kind)
	if !ok {
		return types.Table{}, nil, qerr.NewParseError(obj, value,
			"unknown kind %s, expected one of: %s", kind, strings.Join(kinds, ", "))
	}
	criteria, ok := value[0].Value.(doc.Object)
	if !ok {
		return types.Table{}, nil, qerr.NewParseError(obj, value[0].Value,
			"criteria of %s should be an object", kind)
	}
	return table, criteria, nil
}

// bindNames returns the ancestor names bound by a node: its As, otherwise
// the Include key it was declared under and the kind alias
func bindNames(obj doc.Object, table types.Table, key string) []string {
	if as, ok := obj.Get(grammar.KeyAs); ok {
		return []string{as.(string)}
	}
	if key != "" && key != table.Alias() {
		return []string{key, table.Alias()}
	}
	return []string{table.Alias()}
}

func (c *Compiler) compileExtractor(obj doc.Object, table types.Table, scope, inner ref.Scope) (Extractor, error) {
	if include, ok := obj.Get(grammar.KeyInclude); ok {
		return c.compileInclude(obj, include, table, scope, inner)
	}
	raw, _ := obj.Get(grammar.KeyCase)
	return c.compileCase(obj, raw.([]interface{}), table, scope, inner)
}

// compileInclude compiles an Include value. References read the node's own
// rows within the parent scope; child plans run in the inner scope.
func (c *Compiler) compileInclude(obj doc.Object, include interface{}, table types.Table, scope, inner ref.Scope) (Extractor, error) {
	switch inc := include.(type) {
	case string:
		r, err := c.parseRef(obj, inc, table, scope)
		if err != nil {
			return nil, err
		}
		return Yield{Producer: Producer{Ref: r}}, nil
	case doc.Object:
		if c.validator.IsSelector(inc) {
			child, err := c.compileNode(inc, inner, "")
			if err != nil {
				return nil, err
			}
			return Yield{Producer: Producer{Child: child}}, nil
		}
		fields := make(Fields, 0, len(inc))
		for _, f := range inc {
			var p Producer
			switch v := f.Value.(type) {
			case string:
				r, err := c.parseRef(obj, v, table, scope)
				if err != nil {
					return nil, err
				}
				p.Ref = r
			case doc.Object:
				child, err := c.compileNode(v, inner, f.Key)
				if err != nil {
					return nil, err
				}
				p.Child = child
			}
			fields = append(fields, Field{Key: f.Key, Producer: p})
		}
		return fields, nil
	default:
		return nil, qerr.NewParseError(obj, include, "Include should be a string or an object")
	}
}

func (c *Compiler) compileCase(obj doc.Object, branches []interface{}, table types.Table, scope, inner ref.Scope) (Extractor, error) {
	out := make(Case, 0, len(branches))
	for _, raw := range branches {
		branch := raw.(doc.Object)
		var b Branch
		for _, f := range branch {
			if f.Key == grammar.KeyInclude {
				extract, err := c.compileInclude(obj, f.Value, table, scope, inner)
				if err != nil {
					return nil, err
				}
				b.Extract = extract
				continue
			}
			r, err := c.parseRef(obj, f.Key, table, scope)
			if err != nil {
				return nil, err
			}
			if _, isObj := f.Value.(doc.Object); isObj {
				return nil, qerr.NewParseError(obj, branch, "Case condition %s should be a literal value", f.Key)
			}
			b.Matches = append(b.Matches, Match{Ref: r, Value: f.Value})
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Compiler) compileLimitor(obj doc.Object, table types.Table, list *List) error {
	raw, _ := obj.Get(grammar.KeyLimit)
	limit, _ := types.AsInt(raw)
	if limit > int64(c.maxLimit) {
		return qerr.NewParseError(obj, raw, "Limit must not exceed %d", c.maxLimit)
	}
	list.Limit = int(limit)

	if raw, ok := obj.Get(grammar.KeyOffset); ok {
		offset, _ := types.AsInt(raw)
		list.Offset = int(offset)
	}

	column := types.ColID
	if raw, ok := obj.Get(grammar.KeySortBy); ok {
		column = raw.(string)
		col, known := table.Column(column)
		if !known {
			return qerr.NewParseError(obj, raw, "unknown key %s", column)
		}
		if col.Type == types.JSON {
			return qerr.NewParseError(obj, raw, "cannot sort by %s", column)
		}
	}

	descending := true
	if raw, ok := obj.Get(grammar.KeyOrder); ok {
		descending = raw.(string) != orderAscending
	}
	list.Sort = []types.Sort{{Column: column, Descending: descending}}
	return nil
}

func (c *Compiler) parseRef(obj doc.Object, s string, table types.Table, scope ref.Scope) (ref.Reference, error) {
	r, err := ref.Parse(s, table, scope)
	if err != nil {
		return nil, qerr.NewParseError(obj, s, "%s", err.Error())
	}
	return r, nil
}
