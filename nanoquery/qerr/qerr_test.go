package qerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/arthur-debert/nanoquery/types"
	"github.com/google/go-cmp/cmp"
)

func TestParseErrorDocument(t *testing.T) {
	query := map[string]interface{}{"Count": map[string]interface{}{}, "Include": "id"}
	err := NewParseError(query, query, "unexpected properties: %s", "Include")

	doc := err.Document()
	if doc.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", doc.Status)
	}
	if doc.Title != TitleMalformed {
		t.Errorf("title = %q", doc.Title)
	}
	problems, ok := doc.Detail.([]Problem)
	if !ok || len(problems) != 1 || problems[0].Problem != "unexpected properties: Include" {
		t.Errorf("unexpected detail %#v", doc.Detail)
	}
	if !IsParse(err) || IsDynamic(err) {
		t.Error("ParseError must only belong to the parse family")
	}
}

func TestDynamicErrorDocument(t *testing.T) {
	cause := errors.New("connection reset")
	ctx := &Context{Row: types.Row{"id": int64(1)}}
	err := WrapDynamic(cause, "q", ctx, "store failure")

	if !errors.Is(err, cause) {
		t.Error("dynamic error must unwrap to its cause")
	}
	if !IsDynamic(err) || IsParse(err) {
		t.Error("DynamicError must only belong to the dynamic family")
	}

	doc := ToDocument(err, "ignored")
	want := ErrorDocument{
		Status: http.StatusInternalServerError,
		Title:  TitleExecution,
		Detail: "store failure: connection reset",
		Meta:   Meta{Query: "q", Context: ctx},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestWrapDynamicKeepsInnermost(t *testing.T) {
	inner := NewDynamicError("inner", nil, "expected a count as result from query, got %s", `"x"`)
	wrapped := WrapDynamic(fmt.Errorf("nested: %w", inner), "outer", nil, "outer failure")

	var dyn *DynamicError
	if !errors.As(wrapped, &dyn) {
		t.Fatal("expected a DynamicError")
	}
	if dyn.Query != "inner" {
		t.Errorf("query = %v, want the innermost query", dyn.Query)
	}
}

func TestToDocumentForeignError(t *testing.T) {
	doc := ToDocument(context.Canceled, "q")
	if doc.Status != http.StatusInternalServerError || doc.Detail != context.Canceled.Error() {
		t.Errorf("unexpected document %#v", doc)
	}
}

func TestErrorDocumentJSON(t *testing.T) {
	doc := NewParseError("q", "q", "should have a Limit property").Document()
	got, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"status":400,"title":"Query is malformed","detail":[{"data":"q","problem":"should have a Limit property"}],"meta":{"query":"q"}}`
	if string(got) != want {
		t.Errorf("json = %s\nwant %s", got, want)
	}
}
