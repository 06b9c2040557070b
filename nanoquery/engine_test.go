package nanoquery

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/arthur-debert/nanoquery/nanoquery/metrics"
	"github.com/arthur-debert/nanoquery/testutil"
	"github.com/arthur-debert/nanoquery/types"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func newEngine(t *testing.T, s types.Store, cfg Config, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithClock(testutil.Clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	engine, err := New(s, cfg, opts...)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func universeEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	s, _ := testutil.LoadUniverse(t)
	return newEngine(t, s, DefaultConfig(), opts...)
}

func execute(t *testing.T, engine *Engine, query string) Response {
	t.Helper()
	return engine.Execute(context.Background(), testutil.Community, []byte(query))
}

func TestExecuteScenarios(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
		want   string
	}{
		{
			name:   "count likes by owner",
			query:  `{"CountActions": {"type": "like", "owner_id": 147}}`,
			status: http.StatusOK,
			want:   `{"data": 16}`,
		},
		{
			name:   "generic count",
			query:  `{"Count": {"Action": {"type": "like", "owner_id": 147}}}`,
			status: http.StatusOK,
			want:   `{"data": 16}`,
		},
		{
			name: "list with alias reference",
			query: `{"List": {"Entity": {"type": "post"}}, "As": "posts", "Limit": 2, "Include": {
				"id": "id",
				"group": {"Object": {"Profile": {"id": "posts.profile_ref"}}, "Include": "attribute.name"}
			}}`,
			status: http.StatusOK,
			want: `{"data": {"Total": 4, "NextOffset": 2, "List": [
				{"id": 1007, "group": null},
				{"id": 1003, "group": "Compilers"}
			]}}`,
		},
		{
			name: "nested counts",
			query: `{"Singleton": {"Entity": {"id": 1001}}, "Include": {
				"title": "attribute.title",
				"likes": {"CountActions": {"type": "like", "entity_ref": "^id"}},
				"comments": {"List": {"Entity": {"entity_ref": "^id"}}, "Limit": 5, "Order": "ascending", "Include": {
					"body": "attribute.body",
					"author": {"Singleton": {"Profile": {"id": "^owner_id"}}, "Include": "attribute.handle"},
					"post": "entity.attribute.title"
				}}
			}}`,
			status: http.StatusOK,
			want: `{"data": {
				"title": "Notes on the Analytical Engine",
				"likes": 7,
				"comments": {"Total": 2, "NextOffset": null, "List": [
					{"body": "Great read", "author": "grace", "post": "Notes on the Analytical Engine"},
					{"body": "Thanks", "author": "ada", "post": "Notes on the Analytical Engine"}
				]}
			}}`,
		},
		{
			name:   "id round trip",
			query:  `{"Singleton": {"Profile": {"id": 148}}, "Include": "id"}`,
			status: http.StatusOK,
			want:   `{"data": 148}`,
		},
		{
			name:   "singleton without match is null",
			query:  `{"Singleton": {"Profile": {"id": 9999}}, "Include": "id"}`,
			status: http.StatusOK,
			want:   `{"data": null}`,
		},
		{
			name:   "yaml document",
			query:  "CountEntities:\n  type: post\n",
			status: http.StatusOK,
			want:   `{"data": 4}`,
		},
	}

	engine := universeEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := execute(t, engine, tt.query)
			if resp.Status != tt.status {
				t.Fatalf("expected status %d, got %d: %+v", tt.status, resp.Status, resp.Errors)
			}
			testutil.AssertJSON(t, resp, tt.want)
		})
	}
}

func TestExecuteMalformed(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		problem string
	}{
		{"missing limit", `{"List": {"Entity": {}}, "Include": "id"}`, "should have a Limit property"},
		{"count with include", `{"CountActions": {"type": "like"}, "Include": "id"}`, "unexpected properties: Include"},
		{"bare count with include", `{"Count": {}, "Include": "id"}`, "unexpected properties: Include"},
		{"two selectors", `{"List": {"Entity": {}}, "Count": {"Entity": {}}, "Limit": 1, "Include": "id"}`, "should have exactly one of"},
		{"unknown criteria key", `{"CountEntities": {"colour": "red"}}`, "unknown key colour"},
		{"attribute criteria", `{"CountEntities": {"attribute.title": "Bugs"}}`, "attribute matching not implemented"},
		{"unbound alias", `{"List": {"Entity": {}}, "Limit": 1, "Include": "posts.id"}`, "posts"},
		{"limit too large", `{"List": {"Entity": {}}, "Limit": 5000, "Include": "id"}`, "Limit must not exceed 1000"},
		{"not a document", `{"List": `, "invalid query document"},
		{"cyclic yaml alias", "CountActions: &x\n  type: *x\n", "refers to itself"},
		{"deep document", strings.Repeat(`{"a":`, 100) + "1" + strings.Repeat("}", 100), "deeper than 64 levels"},
		{"window past duration range", `{"CountEntities": {"created_epoch": {"operator": "newerThan", "value": 106752}}}`, "too large for unit days"},
		{"window in max seconds", `{"CountEntities": {"created_epoch": {"operator": "newerThan", "value": 9223372036854775807, "unit": "seconds"}}}`, "too large for unit seconds"},
	}

	engine := universeEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := execute(t, engine, tt.query)
			if resp.Status != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", resp.Status)
			}
			if len(resp.Errors) != 1 {
				t.Fatalf("expected one error document, got %d", len(resp.Errors))
			}
			b, err := json.Marshal(resp.Errors[0].Detail)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(b), tt.problem) {
				t.Errorf("expected a problem containing %q, got %s", tt.problem, b)
			}
		})
	}
}

func TestErrorDocumentShape(t *testing.T) {
	resp := execute(t, universeEngine(t), `{"CountActions": {"type": "like"}, "Include": "id"}`)
	testutil.AssertJSON(t, resp, `{"errors": [{
		"status": 400,
		"title": "Query is malformed",
		"detail": [{"data": {"CountActions": {"type": "like"}, "Include": "id"}, "problem": "unexpected properties: Include"}],
		"meta": {"query": {"CountActions": {"type": "like"}, "Include": "id"}}
	}]}`)
}

// wordCountStore reports counts the engine cannot use
type wordCountStore struct {
	types.Store
}

func (s wordCountStore) Count(ctx context.Context, table string, pred types.Predicate) (interface{}, error) {
	return "lots", nil
}

func TestExecuteDynamicError(t *testing.T) {
	s, _ := testutil.LoadUniverse(t)
	engine := newEngine(t, wordCountStore{Store: s}, DefaultConfig())

	resp := execute(t, engine, `{"CountActions": {"type": "like"}}`)
	if resp.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Status)
	}
	testutil.AssertJSON(t, resp, `{"errors": [{
		"status": 500,
		"title": "Error during execution of query",
		"detail": "expected a count as result from query, got \"lots\"",
		"meta": {"query": {"CountActions": {"type": "like"}}, "context": {}}
	}]}`)
}

func TestSingletonRequiredConfig(t *testing.T) {
	s, _ := testutil.LoadUniverse(t)
	cfg := DefaultConfig()
	cfg.Singleton = "required"
	engine := newEngine(t, s, cfg)

	resp := execute(t, engine, `{"Singleton": {"Profile": {"id": 9999}}, "Include": "id"}`)
	if resp.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Status)
	}
	if detail := resp.Errors[0].Detail; detail != "expected a row as result from query, got none" {
		t.Errorf("unexpected detail %v", detail)
	}
}

func TestListPaging(t *testing.T) {
	engine := universeEngine(t)
	var seen []interface{}
	offset := 0
	for page := 0; page < 5; page++ {
		query := `{"List": {"Entity": {"type": "post"}}, "Limit": 3, "Offset": ` + itoa(offset) + `, "Include": "id"}`
		resp := execute(t, engine, query)
		if !resp.OK() {
			t.Fatalf("page %d failed: %+v", page, resp.Errors)
		}
		var body struct {
			Data struct {
				Total      int64
				NextOffset *int64
				List       []interface{}
			} `json:"data"`
		}
		b, _ := json.Marshal(resp)
		if err := json.Unmarshal(b, &body); err != nil {
			t.Fatal(err)
		}
		if body.Data.Total != 4 {
			t.Errorf("page %d: Total should count every match, got %d", page, body.Data.Total)
		}
		if len(body.Data.List) > 3 {
			t.Errorf("page %d: %d items exceed the limit", page, len(body.Data.List))
		}
		seen = append(seen, body.Data.List...)
		if body.Data.NextOffset == nil {
			break
		}
		offset = int(*body.Data.NextOffset)
	}

	want := []interface{}{float64(1007), float64(1003), float64(1002), float64(1001)}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("pages should cover every post once (-want +got):\n%s", diff)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestSoftDeleteAndCommunity(t *testing.T) {
	tests := []struct {
		name      string
		community int64
		query     string
		want      string
	}{
		{"deleted rows are excluded", testutil.Community, `{"CountEntities": {"type": "post"}}`, `{"data": 4}`},
		{"deleted rows can be targeted", testutil.Community, `{"CountEntities": {"type": "post", "deleted_epoch": {"operator": "ne", "value": null}}}`, `{"data": 1}`},
		{"deleted profile is not found", testutil.Community, `{"Singleton": {"Profile": {"id": 149}}, "Include": "id"}`, `{"data": null}`},
		{"other community", testutil.OtherCommunity, `{"CountEntities": {}}`, `{"data": 1}`},
		{"rows of other communities are invisible", testutil.OtherCommunity, `{"Singleton": {"Profile": {"id": 147}}, "Include": "id"}`, `{"data": null}`},
		{"nested selectors are scoped", testutil.OtherCommunity, `{"Singleton": {"Entity": {"id": 2001}}, "Include": {
			"likes": {"CountActions": {"entity_ref": "^id"}},
			"owner": {"Singleton": {"Profile": {"id": "^owner_id"}}, "Include": "attribute.name"}
		}}`, `{"data": {"likes": 1, "owner": "Outsider"}}`},
	}

	engine := universeEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := engine.Execute(context.Background(), tt.community, []byte(tt.query))
			testutil.AssertJSON(t, resp, tt.want)
		})
	}
}

func TestTimeWindows(t *testing.T) {
	tests := []struct {
		criterion string
		want      string
	}{
		{`{"operator": "newerThan", "value": 1}`, `[1001]`},
		{`{"operator": "newerThan", "value": 2, "unit": "days"}`, `[1002, 1001]`},
		{`{"operator": "newerThan", "value": 48, "unit": "hours"}`, `[1002, 1001]`},
		{`{"operator": "olderThan", "value": 2, "unit": "weeks"}`, `[]`},
		{`{"operator": "olderThan", "value": 7}`, `[1003]`},
		{`{"operator": "newerThan", "value": 100000}`, `[1007, 1003, 1002, 1001]`},
		{`{"operator": "newerThan", "value": 106751}`, `[1007, 1003, 1002, 1001]`},
		{`{"operator": "olderThan", "value": 106751}`, `[]`},
	}

	engine := universeEngine(t)
	for _, tt := range tests {
		t.Run(tt.criterion, func(t *testing.T) {
			query := `{"List": {"Entity": {"type": "post", "created_epoch": ` + tt.criterion + `}}, "Limit": 10, "Include": "id"}`
			resp := execute(t, engine, query)
			if !resp.OK() {
				t.Fatalf("query failed: %+v", resp.Errors)
			}
			b, _ := json.Marshal(resp.Data)
			var list struct{ List json.RawMessage }
			if err := json.Unmarshal(b, &list); err != nil {
				t.Fatal(err)
			}
			testutil.AssertJSON(t, list.List, tt.want)
		})
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	engine := universeEngine(t)
	query := `{"List": {"Profile": {"type": "user"}}, "Limit": 10, "Include": {
		"handle": "attribute.handle",
		"likes": {"CountActions": {"type": "like", "owner_id": "^id"}}
	}}`

	first, err := json.Marshal(execute(t, engine, query))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, _ := json.Marshal(execute(t, engine, query))
		if diff := cmp.Diff(string(first), string(again)); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestFanOutMatchesSequential(t *testing.T) {
	s, _ := testutil.LoadUniverse(t)
	concurrent := DefaultConfig()
	concurrent.FanOut = 4
	query := `{"List": {"Entity": {}}, "Limit": 10, "Include": {
		"id": "id",
		"likes": {"CountActions": {"entity_ref": "^id"}},
		"owner": {"Singleton": {"Profile": {"id": "^owner_id"}}, "Include": "attribute.handle"}
	}}`

	want, _ := json.Marshal(execute(t, newEngine(t, s, DefaultConfig()), query))
	got, _ := json.Marshal(execute(t, newEngine(t, s, concurrent), query))
	if diff := cmp.Diff(string(want), string(got)); diff != "" {
		t.Errorf("fan-out changed the result (-sequential +concurrent):\n%s", diff)
	}
}

func TestMemoryAndSQLAgree(t *testing.T) {
	mem, _ := testutil.LoadUniverse(t)
	sqlStore, _ := testutil.LoadSQLUniverse(t)
	queries := []string{
		`{"CountActions": {"type": "like", "owner_id": 147}}`,
		`{"List": {"Entity": {"type": ["post", "comment"]}}, "Limit": 4, "Offset": 1, "SortBy": "created_epoch", "Include": {
			"id": "id",
			"title": "attribute.title",
			"likes": {"CountActions": {"type": "like", "entity_ref": "^id"}}
		}}`,
		`{"Singleton": {"Profile": {"id": 147}}, "Include": {"name": "attribute.name", "tags": "attribute.tags"}}`,
		`{"CountActions": {"type": {"operator": "ne", "value": ["follow"]}}}`,
		`{"CountActions": {"entity_ref": {"operator": "ne", "value": [1001, null]}}}`,
		`{"CountActions": {"entity_ref": {"operator": "in", "value": [1002, 1007]}}}`,
		`{"CountEntities": {"created_epoch": {"operator": "newerThan", "value": 106751}}}`,
		`{"List": {"Action": {}}, "Limit": 3, "SortBy": "profile_ref", "Include": "id"}`,
		`{"List": {"Action": {}}, "Limit": 3, "SortBy": "profile_ref", "Order": "ascending", "Include": "id"}`,
	}

	for _, query := range queries {
		want, _ := json.Marshal(execute(t, newEngine(t, mem, DefaultConfig()), query))
		got, _ := json.Marshal(execute(t, newEngine(t, sqlStore, DefaultConfig()), query))
		if diff := cmp.Diff(string(want), string(got)); diff != "" {
			t.Errorf("stores disagree on %s (-memory +sqlite):\n%s", query, diff)
		}
	}
}

func TestExecuteRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	engine := universeEngine(t, WithMetrics(m))

	execute(t, engine, `{"CountActions": {"type": "like"}}`)
	execute(t, engine, `{"List": {"Entity": {}}, "Include": "id"}`)

	if got := promtest.ToFloat64(m.QueriesTotal.WithLabelValues(metrics.OutcomeOK)); got != 1 {
		t.Errorf("expected 1 successful query, got %v", got)
	}
	if got := promtest.ToFloat64(m.QueriesTotal.WithLabelValues(metrics.OutcomeMalformed)); got != 1 {
		t.Errorf("expected 1 malformed query, got %v", got)
	}
	if got := promtest.ToFloat64(m.StoreCallsTotal.WithLabelValues("action", "count", "ok")); got != 1 {
		t.Errorf("expected 1 count call on action, got %v", got)
	}
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := universeEngine(t).Execute(ctx, testutil.Community, []byte(`{"CountActions": {}}`))
	if resp.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Status)
	}
	if detail, _ := resp.Errors[0].Detail.(string); !strings.Contains(detail, "context canceled") {
		t.Errorf("expected cancellation in detail, got %v", resp.Errors[0].Detail)
	}
	if resp.RequestID == "" {
		t.Error("response should carry a request id")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	s, _ := testutil.LoadUniverse(t)
	tests := map[string]func(*Config){
		"fan out":   func(c *Config) { c.FanOut = 0 },
		"max limit": func(c *Config) { c.MaxLimit = -1 },
		"policy":    func(c *Config) { c.Singleton = "sometimes" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if _, err := New(s, cfg); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil store")
	}
}
