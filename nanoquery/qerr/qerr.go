// Package qerr defines the two disjoint error families of the query engine.
//
// ParseError covers everything detectable before touching the store: grammar
// violations, unknown criteria keys, unresolvable references. DynamicError
// covers failures only visible while executing a plan: store errors and
// results of the wrong shape. Both render to the same ErrorDocument shape
// but never share a status class.
package qerr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/arthur-debert/nanoquery/types"
)

const (
	TitleMalformed = "Query is malformed"
	TitleExecution = "Error during execution of query"
)

// Problem is a single structural problem found in a query document
type Problem struct {
	Data    interface{} `json:"data" yaml:"data"`
	Problem string      `json:"problem" yaml:"problem"`
}

// String renders the problem message
func (p Problem) String() string {
	return p.Problem
}

// ParseError reports one or more structural problems of a query document
type ParseError struct {
	Problems []Problem
	Query    interface{} // the offending (sub-)document
}

// Error implements the error interface
func (e *ParseError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Problem
	}
	return "malformed query: " + strings.Join(msgs, "; ")
}

// Document renders the error for callers
func (e *ParseError) Document() ErrorDocument {
	return ErrorDocument{
		Status: http.StatusBadRequest,
		Title:  TitleMalformed,
		Detail: e.Problems,
		Meta:   Meta{Query: e.Query},
	}
}

// NewParseError creates a ParseError with a single problem about data
func NewParseError(query, data interface{}, format string, args ...interface{}) *ParseError {
	return &ParseError{
		Problems: []Problem{{Data: data, Problem: fmt.Sprintf(format, args...)}},
		Query:    query,
	}
}

// Context records where in the data an execution failed
type Context struct {
	Row      types.Row            `json:"row,omitempty" yaml:"row,omitempty"`
	Ancestry map[string]types.Row `json:"ancestry,omitempty" yaml:"ancestry,omitempty"`
}

// DynamicError reports a failure while executing a compiled plan
type DynamicError struct {
	Message    string
	Query      interface{}
	Context    *Context
	Underlying error
}

// Error implements the error interface
func (e *DynamicError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain compatibility
func (e *DynamicError) Unwrap() error {
	return e.Underlying
}

// Document renders the error for callers
func (e *DynamicError) Document() ErrorDocument {
	return ErrorDocument{
		Status: http.StatusInternalServerError,
		Title:  TitleExecution,
		Detail: e.Error(),
		Meta:   Meta{Query: e.Query, Context: e.Context},
	}
}

// NewDynamicError creates a DynamicError without an underlying cause
func NewDynamicError(query interface{}, ctx *Context, format string, args ...interface{}) *DynamicError {
	return &DynamicError{
		Message: fmt.Sprintf(format, args...),
		Query:   query,
		Context: ctx,
	}
}

// WrapDynamic wraps a store failure. An error that already is a
// DynamicError is returned unchanged so that the innermost query and
// context are reported.
func WrapDynamic(err error, query interface{}, ctx *Context, message string) error {
	var dyn *DynamicError
	if errors.As(err, &dyn) {
		return err
	}
	return &DynamicError{Message: message, Query: query, Context: ctx, Underlying: err}
}

// Meta carries debugging data of an ErrorDocument
type Meta struct {
	Query   interface{} `json:"query" yaml:"query"`
	Context *Context    `json:"context,omitempty" yaml:"context,omitempty"`
}

// ErrorDocument is the structured failure surfaced to callers
type ErrorDocument struct {
	Status int         `json:"status" yaml:"status"`
	Title  string      `json:"title" yaml:"title"`
	Detail interface{} `json:"detail" yaml:"detail"`
	Meta   Meta        `json:"meta" yaml:"meta"`
}

// Documenter is implemented by both error families
type Documenter interface {
	error
	Document() ErrorDocument
}

// ToDocument renders any error. Errors outside both families, such as a
// cancelled context, are reported as execution errors.
func ToDocument(err error, query interface{}) ErrorDocument {
	var d Documenter
	if errors.As(err, &d) {
		return d.Document()
	}
	return ErrorDocument{
		Status: http.StatusInternalServerError,
		Title:  TitleExecution,
		Detail: err.Error(),
		Meta:   Meta{Query: query},
	}
}

// IsParse reports whether err belongs to the structural family
func IsParse(err error) bool {
	var p *ParseError
	return errors.As(err, &p)
}

// IsDynamic reports whether err belongs to the execution family
func IsDynamic(err error) bool {
	var d *DynamicError
	return errors.As(err, &d)
}
