// Package store provides types.Store implementations: an in-memory store
// loaded from a JSON fixture file and an SQL store for sqlite and postgres.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/arthur-debert/nanoquery/internal/validation"
	"github.com/arthur-debert/nanoquery/types"
)

// MemoryStore keeps every table in memory. Reads never modify the rows, so
// it is safe for concurrent use once loaded.
type MemoryStore struct {
	schema types.Schema
	mu     sync.RWMutex
	tables map[string][]types.Row
}

// MemoryOption configures a MemoryStore loaded from a file
type MemoryOption func(*memoryLoader)

type memoryLoader struct {
	fs       FileSystem
	openLock LockOpener
}

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) MemoryOption {
	return func(l *memoryLoader) {
		l.fs = fs
	}
}

// WithLockOpener replaces the flock based lock taken while loading
func WithLockOpener(open LockOpener) MemoryOption {
	return func(l *memoryLoader) {
		l.openLock = open
	}
}

// NewMemoryStore creates a store holding rows per table name. Rows are
// validated against schema and their values normalized.
func NewMemoryStore(schema types.Schema, tables map[string][]types.Row) (*MemoryStore, error) {
	if err := validation.ValidateSchema(schema); err != nil {
		return nil, err
	}
	s := &MemoryStore{schema: schema, tables: make(map[string][]types.Row)}
	for _, t := range schema.Tables {
		s.tables[t.Name] = nil
	}
	for name, rows := range tables {
		if err := s.insert(name, rows); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadFile creates a MemoryStore from a JSON file of the form
// {"profile": [...], "entity": [...], "action": [...]}. The file is read
// under a shared lock on path+".lock". A missing or empty file yields an
// empty store.
func LoadFile(path string, schema types.Schema, opts ...MemoryOption) (*MemoryStore, error) {
	l := &memoryLoader{}
	for _, opt := range opts {
		opt(l)
	}
	if l.fs == nil {
		l.fs = &OSFileSystem{}
	}
	if l.openLock == nil {
		l.openLock = openFlock
	}

	data, err := readShared(l.fs, l.openLock, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	tables, err := DecodeTables(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return NewMemoryStore(schema, tables)
}

// DecodeTables decodes a fixture document into rows per table. Numbers are
// decoded as int64 when integral.
func DecodeTables(data []byte) (map[string][]types.Row, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string][]map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	tables := make(map[string][]types.Row, len(raw))
	for name, rows := range raw {
		out := make([]types.Row, len(rows))
		for i, r := range rows {
			out[i] = normalizeRow(r)
		}
		tables[name] = out
	}
	return tables, nil
}

func normalizeRow(r map[string]interface{}) types.Row {
	row := make(types.Row, len(r))
	for k, v := range r {
		row[k] = normalizeValue(v)
	}
	return row
}

func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = normalizeValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return types.Normalize(v)
	}
}

// Insert adds rows to a table
func (s *MemoryStore) Insert(table string, rows ...types.Row) error {
	return s.insert(table, rows)
}

func (s *MemoryStore) insert(name string, rows []types.Row) error {
	t, ok := s.schema.ByName(name)
	if !ok {
		return fmt.Errorf("unknown table %s", name)
	}
	normalized := make([]types.Row, len(rows))
	for i, r := range rows {
		row := normalizeRow(r)
		if err := validation.ValidateRow(t, row); err != nil {
			return err
		}
		normalized[i] = row
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = append(s.tables[name], normalized...)
	return nil
}

// Count implements types.Store
func (s *MemoryStore) Count(ctx context.Context, table string, pred types.Predicate) (interface{}, error) {
	rows, err := s.selectRows(ctx, table, pred)
	if err != nil {
		return nil, err
	}
	return int64(len(rows)), nil
}

// FindOne implements types.Store
func (s *MemoryStore) FindOne(ctx context.Context, table string, pred types.Predicate) (types.Row, error) {
	rows, err := s.selectRows(ctx, table, pred)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sortRows(rows, nil)
	return rows[0], nil
}

// FindMany implements types.Store
func (s *MemoryStore) FindMany(ctx context.Context, table string, pred types.Predicate, sorts []types.Sort, limit, offset int) ([]types.Row, error) {
	rows, err := s.selectRows(ctx, table, pred)
	if err != nil {
		return nil, err
	}
	sortRows(rows, sorts)

	if offset >= len(rows) {
		return []types.Row{}, nil
	}
	rows = rows[offset:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

// selectRows returns the matching rows of table as a fresh slice
func (s *MemoryStore) selectRows(ctx context.Context, table string, pred types.Predicate) ([]types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := s.schema.ByName(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", table)
	}
	for _, c := range pred.Conditions {
		if _, known := t.Column(c.Column); !known {
			return nil, fmt.Errorf("table %s has no column %s", table, c.Column)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Row
	for _, row := range s.tables[table] {
		if matchesPredicate(row, pred) {
			out = append(out, row)
		}
	}
	return out, nil
}

// sortRows sorts rows by sorts, breaking ties by ascending id
func sortRows(rows []types.Row, sorts []types.Sort) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, clause := range sorts {
			c, _ := types.Compare(rows[i][clause.Column], rows[j][clause.Column])
			if c < 0 {
				return !clause.Descending
			} else if c > 0 {
				return clause.Descending
			}
		}
		c, _ := types.Compare(rows[i].ID(), rows[j].ID())
		return c < 0
	})
}
