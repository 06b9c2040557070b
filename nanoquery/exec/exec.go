// Package exec runs compiled plans against a types.Store and assembles the
// nested result document.
//
// Execution is depth-first and per row: the child plans of a row run before
// the row's output object is complete, with the row pushed onto the
// ancestry. No batching across rows is attempted.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arthur-debert/nanoquery/nanoquery/plan"
	"github.com/arthur-debert/nanoquery/nanoquery/qerr"
	"github.com/arthur-debert/nanoquery/nanoquery/ref"
	"github.com/arthur-debert/nanoquery/types"
)

// SingletonPolicy decides what a Singleton matching no row produces
type SingletonPolicy int

const (
	// SingletonNull yields a null result
	SingletonNull SingletonPolicy = iota
	// SingletonRequired fails with a dynamic error
	SingletonRequired
)

// String returns the configuration spelling of the policy
func (p SingletonPolicy) String() string {
	if p == SingletonRequired {
		return "required"
	}
	return "null"
}

// ParseSingletonPolicy parses "null" or "required"
func ParseSingletonPolicy(s string) (SingletonPolicy, error) {
	switch s {
	case "", "null":
		return SingletonNull, nil
	case "required":
		return SingletonRequired, nil
	default:
		return SingletonNull, fmt.Errorf("invalid singleton policy %q (expected null or required)", s)
	}
}

// ListResult is the result of a List node
type ListResult struct {
	Total      int64         `json:"Total" yaml:"Total"`
	NextOffset *int64        `json:"NextOffset" yaml:"NextOffset"`
	List       []interface{} `json:"List" yaml:"List"`
}

// Options configures an Executor
type Options struct {
	// FanOut bounds how many rows of a list are assembled concurrently.
	// Values below 2 assemble rows sequentially.
	FanOut int

	Singleton SingletonPolicy

	// Clock anchors relative time criteria, time.Now when nil
	Clock func() time.Time

	Logger *slog.Logger
}

// Executor runs plans. It holds no per-request state and is safe for
// concurrent use.
type Executor struct {
	store  types.Store
	opts   Options
	logger *slog.Logger
}

// New creates an executor reading from store
func New(store types.Store, opts Options) *Executor {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, opts: opts, logger: logger}
}

// Context is the execution context of a node: the community every selector
// is scoped to and the rows of the enclosing nodes
type Context struct {
	Community interface{}
	Ancestry  ref.Ancestry
}

// run carries the per-request values shared by every node of one execution
type run struct {
	*Executor
	community interface{}
	now       time.Time
}

// Execute runs node and returns its result: an int64 for Count, an object,
// value or nil for Singleton and a ListResult for List. Any error aborts the
// whole execution.
func (e *Executor) Execute(ctx context.Context, node plan.Node, c Context) (interface{}, error) {
	r := &run{Executor: e, community: c.Community, now: e.opts.Clock()}
	return r.node(ctx, node, c.Ancestry)
}

func (r *run) node(ctx context.Context, node plan.Node, ancestry ref.Ancestry) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := node.(type) {
	case *plan.Count:
		return r.count(ctx, &n.Selection, ancestry)
	case *plan.Singleton:
		return r.singleton(ctx, n, ancestry)
	case *plan.List:
		return r.list(ctx, n, ancestry)
	default:
		return nil, fmt.Errorf("unknown plan node %T", node)
	}
}

func (r *run) count(ctx context.Context, sel *plan.Selection, ancestry ref.Ancestry) (int64, error) {
	pred := sel.Predicate(r.community, ancestry, r.now)
	raw, err := r.store.Count(ctx, sel.Table.Name, pred)
	if err != nil {
		return 0, r.storeError(ctx, err, sel, ancestry, "count query failed")
	}
	n, ok := types.AsInt(raw)
	if !ok || n < 0 {
		return 0, qerr.NewDynamicError(sel.Query(), errContext(nil, ancestry),
			"expected a count as result from query, got %s", types.Describe(raw))
	}
	return n, nil
}

func (r *run) singleton(ctx context.Context, n *plan.Singleton, ancestry ref.Ancestry) (interface{}, error) {
	pred := n.Predicate(r.community, ancestry, r.now)
	row, err := r.store.FindOne(ctx, n.Table.Name, pred)
	if err != nil {
		return nil, r.storeError(ctx, err, &n.Selection, ancestry, "find query failed")
	}
	if row == nil {
		if r.opts.Singleton == SingletonRequired {
			return nil, qerr.NewDynamicError(n.Query(), errContext(nil, ancestry),
				"expected a row as result from query, got none")
		}
		return nil, nil
	}
	return r.assemble(ctx, n.Extract, row, ancestry, n.Alias())
}

func (r *run) list(ctx context.Context, n *plan.List, ancestry ref.Ancestry) (interface{}, error) {
	total, err := r.count(ctx, &n.Selection, ancestry)
	if err != nil {
		return nil, err
	}

	pred := n.Predicate(r.community, ancestry, r.now)
	rows, err := r.store.FindMany(ctx, n.Table.Name, pred, n.Sort, n.Limit, n.Offset)
	if err != nil {
		return nil, r.storeError(ctx, err, &n.Selection, ancestry, "list query failed")
	}
	if len(rows) > n.Limit {
		return nil, qerr.NewDynamicError(n.Query(), errContext(nil, ancestry),
			"expected at most %d rows as result from query, got %d", n.Limit, len(rows))
	}

	items, err := r.assembleRows(ctx, n, rows, ancestry)
	if err != nil {
		return nil, err
	}

	result := &ListResult{Total: total, List: items}
	if next := int64(n.Offset + len(rows)); next < total {
		result.NextOffset = &next
	}
	return result, nil
}

// storeError wraps a store failure. Cancellation is reported as such rather
// than as a store failure.
func (r *run) storeError(ctx context.Context, err error, sel *plan.Selection, ancestry ref.Ancestry, msg string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.logger.Debug("store call failed", "table", sel.Table.Name, "error", err)
	return qerr.WrapDynamic(err, sel.Query(), errContext(nil, ancestry), msg)
}

func errContext(row types.Row, ancestry ref.Ancestry) *qerr.Context {
	return &qerr.Context{Row: row, Ancestry: ancestry.Snapshot()}
}
