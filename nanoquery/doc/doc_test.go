package doc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestParsePreservesKeyOrder(t *testing.T) {
	obj, err := ParseObject([]byte(`{"zeta": 1, "alpha": "x", "mid": {"b": true, "a": null}}`))
	if err != nil {
		t.Fatalf("ParseObject failed: %v", err)
	}

	want := Object{
		{Key: "zeta", Value: int64(1)},
		{Key: "alpha", Value: "x"},
		{Key: "mid", Value: Object{
			{Key: "b", Value: true},
			{Key: "a", Value: nil},
		}},
	}
	if diff := cmp.Diff(want, obj); diff != "" {
		t.Errorf("parsed document mismatch (-want +got):\n%s", diff)
	}
}

func TestParseScalars(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  interface{}
	}{
		{"integer", `147`, int64(147)},
		{"integral float", `8.0`, int64(8)},
		{"float", `2.5`, 2.5},
		{"string", `"post"`, "post"},
		{"back reference", `"^owner_id"`, "^owner_id"},
		{"bool", `false`, false},
		{"null", `null`, nil},
		{"list", `[1, "a"]`, []interface{}{int64(1), "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse(%s) failed: %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%s) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestParseYAML(t *testing.T) {
	input := `
List:
  Entity:
    type: post
Limit: 8
Include:
  title: attribute.title
  id: id
`
	obj, err := ParseObject([]byte(input))
	if err != nil {
		t.Fatalf("ParseObject failed: %v", err)
	}
	if diff := cmp.Diff([]string{"List", "Limit", "Include"}, obj.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	include, _ := obj.Get("Include")
	if diff := cmp.Diff([]string{"title", "id"}, include.(Object).Keys()); diff != "" {
		t.Errorf("include keys mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte("   ")); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}

	_, err := Parse([]byte(`{"a": 1, "a": 2}`))
	if err == nil || !strings.Contains(err.Error(), "duplicate key") {
		t.Errorf("expected duplicate key error, got %v", err)
	}

	if _, err := ParseObject([]byte(`[1, 2]`)); err == nil {
		t.Error("expected error for non-object root")
	}
}

func TestObjectMarshalJSONKeepsOrder(t *testing.T) {
	obj := Object{
		{Key: "name", Value: "ada"},
		{Key: "id", Value: int64(3)},
		{Key: "posts", Value: []interface{}{Object{{Key: "z", Value: nil}, {Key: "a", Value: 1.5}}}},
	}
	got, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"name":"ada","id":3,"posts":[{"z":null,"a":1.5}]}`
	if string(got) != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestObjectMarshalYAMLKeepsOrder(t *testing.T) {
	obj := Object{{Key: "b", Value: int64(1)}, {Key: "a", Value: "x"}}
	got, err := yaml.Marshal(obj)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if want := "b: 1\na: x\n"; string(got) != want {
		t.Errorf("Marshal() = %q, want %q", got, want)
	}
}

func TestPlainAndFromGo(t *testing.T) {
	plain := map[string]interface{}{"b": float64(2), "a": []interface{}{map[string]interface{}{"c": "d"}}}
	obj := FromGo(plain)

	want := Object{
		{Key: "a", Value: []interface{}{Object{{Key: "c", Value: "d"}}}},
		{Key: "b", Value: int64(2)},
	}
	if diff := cmp.Diff(want, obj); diff != "" {
		t.Errorf("FromGo mismatch (-want +got):\n%s", diff)
	}

	back := Plain(obj)
	wantPlain := map[string]interface{}{"b": int64(2), "a": []interface{}{map[string]interface{}{"c": "d"}}}
	if diff := cmp.Diff(wantPlain, back); diff != "" {
		t.Errorf("Plain mismatch (-want +got):\n%s", diff)
	}
}

func TestParseYAMLAliases(t *testing.T) {
	input := `
base: &filter
  type: like
first: *filter
second: *filter
`
	obj, err := ParseObject([]byte(input))
	if err != nil {
		t.Fatalf("ParseObject failed: %v", err)
	}
	want := Object{{Key: "type", Value: "like"}}
	for _, key := range []string{"base", "first", "second"} {
		got, _ := obj.Get(key)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", key, diff)
		}
	}
}

func TestParseRejectsUnboundedInput(t *testing.T) {
	// nine levels of nine aliases expand to 9^9 values
	var bomb strings.Builder
	bomb.WriteString("l0: &l0 [x, x, x, x, x, x, x, x, x]\n")
	for i := 1; i < 10; i++ {
		fmt.Fprintf(&bomb, "l%d: &l%d [", i, i)
		for j := 0; j < 9; j++ {
			if j > 0 {
				bomb.WriteString(", ")
			}
			fmt.Fprintf(&bomb, "*l%d", i-1)
		}
		bomb.WriteString("]\n")
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"self referencing mapping", "a: &x\n  b: *x\n", "refers to itself"},
		{"self referencing list", "a: &x [1, *x]\n", "refers to itself"},
		{"indirect cycle", "a: &x\n  b: &y\n    c: *x\n", "refers to itself"},
		{"alias expansion", bomb.String(), "more than 100000 values"},
		{"deep json", strings.Repeat("[", MaxDepth+2) + strings.Repeat("]", MaxDepth+2), "deeper than 64 levels"},
		{"deep yaml", "a: " + strings.Repeat("[", MaxDepth+2) + "1" + strings.Repeat("]", MaxDepth+2), "deeper than 64 levels"},
		{"deep json object", strings.Repeat(`{"a":`, MaxDepth+2) + "1" + strings.Repeat("}", MaxDepth+2), "deeper than 64 levels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseAtMaxDepth(t *testing.T) {
	input := strings.Repeat("[", MaxDepth) + strings.Repeat("]", MaxDepth)
	if _, err := Parse([]byte(input)); err != nil {
		t.Errorf("expected %d levels to parse, got %v", MaxDepth, err)
	}
}
