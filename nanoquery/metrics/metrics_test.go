package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arthur-debert/nanoquery/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubStore struct {
	err error
}

func (s stubStore) Count(ctx context.Context, table string, pred types.Predicate) (interface{}, error) {
	return int64(3), s.err
}

func (s stubStore) FindOne(ctx context.Context, table string, pred types.Predicate) (types.Row, error) {
	return types.Row{"id": int64(1)}, s.err
}

func (s stubStore) FindMany(ctx context.Context, table string, pred types.Predicate, sorts []types.Sort, limit, offset int) ([]types.Row, error) {
	return nil, s.err
}

func TestInstrumentStoreCountsCalls(t *testing.T) {
	m := New(prometheus.NewRegistry())
	s := InstrumentStore(stubStore{}, m)
	ctx := context.Background()

	_, _ = s.Count(ctx, "action", types.Predicate{})
	_, _ = s.Count(ctx, "action", types.Predicate{})
	_, _ = s.FindOne(ctx, "profile", types.Predicate{})

	if got := testutil.ToFloat64(m.StoreCallsTotal.WithLabelValues("action", "count", "ok")); got != 2 {
		t.Errorf("expected 2 count calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.StoreCallsTotal.WithLabelValues("profile", "find_one", "ok")); got != 1 {
		t.Errorf("expected 1 find_one call, got %v", got)
	}
}

func TestInstrumentStoreRecordsErrors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	s := InstrumentStore(stubStore{err: errors.New("boom")}, m)

	if _, err := s.FindMany(context.Background(), "entity", types.Predicate{}, nil, 1, 0); err == nil {
		t.Fatal("expected the store error to pass through")
	}
	if got := testutil.ToFloat64(m.StoreCallsTotal.WithLabelValues("entity", "find_many", "error")); got != 1 {
		t.Errorf("expected 1 failed find_many call, got %v", got)
	}
}

func TestObserveQuery(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveQuery(OutcomeOK, 10*time.Millisecond)
	m.ObserveQuery(OutcomeMalformed, time.Millisecond)
	m.ObserveQuery(OutcomeOK, time.Millisecond)

	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues(OutcomeOK)); got != 2 {
		t.Errorf("expected 2 ok queries, got %v", got)
	}
	if got := testutil.CollectAndCount(m.QueryDuration); got != 2 {
		t.Errorf("expected 2 duration series, got %d", got)
	}
}
