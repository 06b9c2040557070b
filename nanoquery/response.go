package nanoquery

import (
	"encoding/json"

	"github.com/arthur-debert/nanoquery/nanoquery/doc"
	"github.com/arthur-debert/nanoquery/nanoquery/qerr"
)

// Response is the outcome of Execute: Data on success, Errors otherwise
type Response struct {
	// Status is the HTTP status matching the outcome
	Status int

	Data   interface{}
	Errors []qerr.ErrorDocument

	// RequestID identifies the request in logs
	RequestID string
}

// OK reports whether the query succeeded
func (r Response) OK() bool {
	return len(r.Errors) == 0
}

// Document returns the body sent to callers: {"data": ...} or
// {"errors": [...]}. A null data value is kept.
func (r Response) Document() doc.Object {
	if r.OK() {
		return doc.Object{{Key: "data", Value: r.Data}}
	}
	return doc.Object{{Key: "errors", Value: r.Errors}}
}

// MarshalJSON implements json.Marshaler
func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Document())
}

// MarshalYAML implements yaml.Marshaler
func (r Response) MarshalYAML() (interface{}, error) {
	return r.Document(), nil
}
