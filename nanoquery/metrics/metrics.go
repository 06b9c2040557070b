// Package metrics instruments query execution and store calls with
// Prometheus collectors.
package metrics

import (
	"context"
	"time"

	"github.com/arthur-debert/nanoquery/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a query
const (
	OutcomeOK        = "ok"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// Metrics holds the collectors of one engine
type Metrics struct {
	// QueriesTotal counts executed query documents by outcome
	QueriesTotal *prometheus.CounterVec

	// QueryDuration is the latency of whole query documents
	QueryDuration *prometheus.HistogramVec

	// StoreCallsTotal counts store calls by table, method and status
	StoreCallsTotal *prometheus.CounterVec

	// StoreCallDuration is the latency of store calls
	StoreCallDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg registers with the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nanoquery_queries_total",
				Help: "Total number of executed query documents",
			},
			[]string{"outcome"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nanoquery_query_duration_seconds",
				Help:    "Query document latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		StoreCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nanoquery_store_calls_total",
				Help: "Total number of store calls",
			},
			[]string{"table", "method", "status"},
		),
		StoreCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nanoquery_store_call_duration_seconds",
				Help:    "Store call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"table", "method"},
		),
	}
}

// ObserveQuery records one query document
func (m *Metrics) ObserveQuery(outcome string, d time.Duration) {
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) observeStore(table, method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreCallsTotal.WithLabelValues(table, method, status).Inc()
	m.StoreCallDuration.WithLabelValues(table, method).Observe(time.Since(start).Seconds())
}

// Store wraps a types.Store and records every call
type Store struct {
	next    types.Store
	metrics *Metrics
}

// InstrumentStore returns next wrapped with m
func InstrumentStore(next types.Store, m *Metrics) *Store {
	return &Store{next: next, metrics: m}
}

// Count implements types.Store
func (s *Store) Count(ctx context.Context, table string, pred types.Predicate) (interface{}, error) {
	start := time.Now()
	n, err := s.next.Count(ctx, table, pred)
	s.metrics.observeStore(table, "count", start, err)
	return n, err
}

// FindOne implements types.Store
func (s *Store) FindOne(ctx context.Context, table string, pred types.Predicate) (types.Row, error) {
	start := time.Now()
	row, err := s.next.FindOne(ctx, table, pred)
	s.metrics.observeStore(table, "find_one", start, err)
	return row, err
}

// FindMany implements types.Store
func (s *Store) FindMany(ctx context.Context, table string, pred types.Predicate, sorts []types.Sort, limit, offset int) ([]types.Row, error) {
	start := time.Now()
	rows, err := s.next.FindMany(ctx, table, pred, sorts, limit, offset)
	s.metrics.observeStore(table, "find_many", start, err)
	return rows, err
}
