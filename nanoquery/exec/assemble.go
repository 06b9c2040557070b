package exec

import (
	"context"
	"errors"

	"github.com/arthur-debert/nanoquery/nanoquery/doc"
	"github.com/arthur-debert/nanoquery/nanoquery/plan"
	"github.com/arthur-debert/nanoquery/nanoquery/qerr"
	"github.com/arthur-debert/nanoquery/nanoquery/ref"
	"github.com/arthur-debert/nanoquery/types"
	"golang.org/x/sync/errgroup"
)

// assembleRows shapes the rows of a list. With FanOut above 1 the rows are
// assembled concurrently; each goroutine writes only its own slot so the
// output keeps the store order.
func (r *run) assembleRows(ctx context.Context, n *plan.List, rows []types.Row, ancestry ref.Ancestry) ([]interface{}, error) {
	items := make([]interface{}, len(rows))
	if r.opts.FanOut < 2 || len(rows) < 2 {
		for i, row := range rows {
			item, err := r.assemble(ctx, n.Extract, row, ancestry, n.Alias())
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return items, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.FanOut)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			item, err := r.assemble(gctx, n.Extract, row, ancestry, n.Alias())
			if err != nil {
				return err
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// assemble shapes one row. References read the row itself against the
// enclosing ancestry; child plans see the row pushed under alias.
func (r *run) assemble(ctx context.Context, e plan.Extractor, row types.Row, ancestry ref.Ancestry, alias string) (interface{}, error) {
	switch x := e.(type) {
	case plan.Yield:
		return r.produce(ctx, x.Producer, row, ancestry, alias)
	case plan.Fields:
		out := make(doc.Object, 0, len(x))
		for _, f := range x {
			v, err := r.produce(ctx, f.Producer, row, ancestry, alias)
			if err != nil {
				return nil, err
			}
			out = append(out, doc.Field{Key: f.Key, Value: v})
		}
		return out, nil
	case plan.Case:
		for _, b := range x {
			if matches(b, row, ancestry) {
				return r.assemble(ctx, b.Extract, row, ancestry, alias)
			}
		}
		return nil, nil
	default:
		return nil, qerr.NewDynamicError(nil, errContext(row, ancestry), "unknown extractor %T", e)
	}
}

func (r *run) produce(ctx context.Context, p plan.Producer, row types.Row, ancestry ref.Ancestry, alias string) (interface{}, error) {
	if p.Child == nil {
		return ref.Resolve(p.Ref, row, ancestry), nil
	}
	v, err := r.node(ctx, p.Child, ancestry.Push(ref.Entry{Alias: alias, Row: row}))
	if err != nil {
		var dyn *qerr.DynamicError
		if errors.As(err, &dyn) && dyn.Context != nil && dyn.Context.Row == nil {
			dyn.Context.Row = row
		}
		return nil, err
	}
	return v, nil
}

func matches(b plan.Branch, row types.Row, ancestry ref.Ancestry) bool {
	for _, m := range b.Matches {
		if !types.Equal(ref.Resolve(m.Ref, row, ancestry), types.Normalize(m.Value)) {
			return false
		}
	}
	return true
}
