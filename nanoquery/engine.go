// Package nanoquery executes declarative nested query documents against a
// relational store of profiles, entities and actions.
//
// A query document is validated, compiled into an immutable plan and run
// depth-first against a types.Store:
//
//	engine, err := nanoquery.New(store, nanoquery.DefaultConfig())
//	resp := engine.Execute(ctx, communityID, []byte(`{"CountActions": {"type": "like"}}`))
//
// Execute returns a Response that is either {"data": ...} or
// {"errors": [...]} with the HTTP status of the failure.
package nanoquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arthur-debert/nanoquery/nanoquery/doc"
	"github.com/arthur-debert/nanoquery/nanoquery/exec"
	"github.com/arthur-debert/nanoquery/nanoquery/metrics"
	"github.com/arthur-debert/nanoquery/nanoquery/plan"
	"github.com/arthur-debert/nanoquery/nanoquery/qerr"
	"github.com/arthur-debert/nanoquery/types"
	"github.com/google/uuid"
)

// Engine validates, compiles and executes query documents. It is safe for
// concurrent use; every call is an independent request.
type Engine struct {
	compiler *plan.Compiler
	executor *exec.Executor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	config   Config
}

// Option configures an Engine
type Option func(*engineOptions)

type engineOptions struct {
	schema  types.Schema
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// WithSchema replaces types.DefaultSchema
func WithSchema(schema types.Schema) Option {
	return func(o *engineOptions) {
		o.schema = schema
	}
}

// WithLogger sets the logger, slog.Default() otherwise
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithMetrics records queries and store calls in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *engineOptions) {
		o.metrics = m
	}
}

// WithClock sets the clock relative time criteria are evaluated against
func WithClock(clock func() time.Time) Option {
	return func(o *engineOptions) {
		o.clock = clock
	}
}

// New creates an engine reading from store
func New(store types.Store, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := engineOptions{schema: types.DefaultSchema(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	compiler, err := plan.NewCompiler(o.schema, plan.WithMaxLimit(cfg.MaxLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to create compiler: %w", err)
	}

	policy, _ := exec.ParseSingletonPolicy(cfg.Singleton)
	if o.metrics != nil {
		store = metrics.InstrumentStore(store, o.metrics)
	}
	executor := exec.New(store, exec.Options{
		FanOut:    cfg.FanOut,
		Singleton: policy,
		Clock:     o.clock,
		Logger:    o.logger,
	})

	return &Engine{
		compiler: compiler,
		executor: executor,
		logger:   o.logger,
		metrics:  o.metrics,
		config:   cfg,
	}, nil
}

// Config returns the configuration the engine was created with
func (e *Engine) Config() Config {
	return e.config
}

// Validate returns the grammar problems of a parsed document
func (e *Engine) Validate(query interface{}) []qerr.Problem {
	return e.compiler.Validator().Validate(query)
}

// Compile validates and compiles a parsed document
func (e *Engine) Compile(query interface{}) (plan.Node, error) {
	return e.compiler.Compile(query)
}

// Run compiles and executes a parsed document for community. Errors are a
// *qerr.ParseError, a *qerr.DynamicError or a context error.
func (e *Engine) Run(ctx context.Context, community interface{}, query interface{}) (interface{}, error) {
	node, err := e.compiler.Compile(query)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, node, exec.Context{Community: community})
}

// Execute parses raw as JSON or YAML and runs it for community. This is the
// "execute query" request surface.
func (e *Engine) Execute(ctx context.Context, community interface{}, raw []byte) Response {
	requestID := uuid.NewString()
	logger := e.logger.With("request_id", requestID, "community", community)
	start := time.Now()

	var (
		query  interface{}
		result interface{}
	)
	query, err := doc.Parse(raw)
	if err != nil {
		err = qerr.NewParseError(nil, string(raw), "invalid query document: %v", err)
	} else {
		result, err = e.Run(ctx, community, query)
	}
	elapsed := time.Since(start)

	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
		logger.Debug("query executed", "duration", elapsed)
	case qerr.IsParse(err):
		outcome = metrics.OutcomeMalformed
		logger.Debug("query rejected", "duration", elapsed, "error", err)
	default:
		outcome = metrics.OutcomeFailed
		logger.Error("query failed", "duration", elapsed, "error", err)
	}
	if e.metrics != nil {
		e.metrics.ObserveQuery(outcome, elapsed)
	}

	if err != nil {
		return errorResponse(requestID, err, query)
	}
	return Response{Status: http.StatusOK, Data: result, RequestID: requestID}
}

func errorResponse(requestID string, err error, query interface{}) Response {
	d := qerr.ToDocument(err, query)
	return Response{Status: d.Status, Errors: []qerr.ErrorDocument{d}, RequestID: requestID}
}
