package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/arthur-debert/nanoquery/nanoquery/qerr"
	"github.com/arthur-debert/nanoquery/types"
	"github.com/google/go-cmp/cmp"
)

// AssertJSON compares the JSON encoding of got with want, ignoring
// whitespace but not key order
func AssertJSON(t testing.TB, got interface{}, want string) {
	t.Helper()
	b, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}
	if diff := cmp.Diff(compactJSON(t, want), string(b)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func compactJSON(t testing.TB, s string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		t.Fatalf("invalid expected JSON %s: %v", s, err)
	}
	return buf.String()
}

// AssertParseError checks that err is a ParseError carrying want among its
// problems
func AssertParseError(t testing.TB, err error, want string) *qerr.ParseError {
	t.Helper()
	var pe *qerr.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a ParseError, got %T: %v", err, err)
	}
	for _, p := range pe.Problems {
		if strings.Contains(p.Problem, want) {
			return pe
		}
	}
	t.Errorf("expected a problem containing %q, got %v", want, pe.Problems)
	return pe
}

// AssertDynamicError checks that err is a DynamicError whose message
// contains want
func AssertDynamicError(t testing.TB, err error, want string) *qerr.DynamicError {
	t.Helper()
	var de *qerr.DynamicError
	if !errors.As(err, &de) {
		t.Fatalf("expected a DynamicError, got %T: %v", err, err)
	}
	if !strings.Contains(de.Error(), want) {
		t.Errorf("expected error containing %q, got %q", want, de.Error())
	}
	return de
}

// AssertIDs checks the ids of rows in order
func AssertIDs(t testing.TB, rows []types.Row, want ...int64) {
	t.Helper()
	got := make([]int64, len(rows))
	for i, r := range rows {
		got[i], _ = types.AsInt(r.ID())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("row ids mismatch (-want +got):\n%s", diff)
	}
}
