package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/arthur-debert/nanoquery/internal/validation"
	"github.com/arthur-debert/nanoquery/types"

	// database/sql drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLStore implements types.Store over database/sql. Every table of the
// schema maps to an SQL table of the same name whose attributes column holds
// JSON text.
type SQLStore struct {
	db     *sql.DB
	schema types.Schema
	sq     squirrel.StatementBuilderType
}

// OpenSQL opens dsn with driver ("sqlite" or "postgres")
func OpenSQL(driver, dsn string, schema types.Schema) (*SQLStore, error) {
	var (
		sqlDriver   string
		placeholder squirrel.PlaceholderFormat
	)
	switch driver {
	case DriverSQLite:
		sqlDriver, placeholder = "sqlite", squirrel.Question
	case DriverPostgres:
		sqlDriver, placeholder = "pgx", squirrel.Dollar
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
		// an in-memory database lives in its single connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	s, err := NewSQLStore(db, schema, placeholder)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database
func NewSQLStore(db *sql.DB, schema types.Schema, placeholder squirrel.PlaceholderFormat) (*SQLStore, error) {
	if err := validation.ValidateSchema(schema); err != nil {
		return nil, err
	}
	return &SQLStore{
		db:     db,
		schema: schema,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(placeholder),
	}, nil
}

// DB returns the underlying database
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close releases database resources
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Count implements types.Store
func (s *SQLStore) Count(ctx context.Context, table string, pred types.Predicate) (interface{}, error) {
	t, where, err := s.where(table, pred)
	if err != nil {
		return nil, err
	}
	query, args, err := s.sq.Select("COUNT(*)").From(t.Name).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build count query: %w", err)
	}

	var n interface{}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return nil, fmt.Errorf("count %s: %w", t.Name, err)
	}
	return types.Normalize(n), nil
}

// FindOne implements types.Store
func (s *SQLStore) FindOne(ctx context.Context, table string, pred types.Predicate) (types.Row, error) {
	rows, err := s.find(ctx, table, pred, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FindMany implements types.Store
func (s *SQLStore) FindMany(ctx context.Context, table string, pred types.Predicate, sorts []types.Sort, limit, offset int) ([]types.Row, error) {
	return s.find(ctx, table, pred, sorts, limit, offset)
}

func (s *SQLStore) find(ctx context.Context, table string, pred types.Predicate, sorts []types.Sort, limit, offset int) ([]types.Row, error) {
	t, where, err := s.where(table, pred)
	if err != nil {
		return nil, err
	}

	q := s.sq.Select(t.ColumnNames()...).From(t.Name).Where(where)
	for _, srt := range sorts {
		if _, ok := t.Column(srt.Column); !ok {
			return nil, fmt.Errorf("table %s has no column %s", t.Name, srt.Column)
		}
		// nulls sort lowest, whatever the driver defaults to
		dir := "ASC NULLS FIRST"
		if srt.Descending {
			dir = "DESC NULLS LAST"
		}
		q = q.OrderBy(srt.Column + " " + dir)
	}
	q = q.OrderBy(types.ColID + " ASC")
	if limit >= 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()

	return scanRows(t, rows)
}

// where translates the predicate into a squirrel conjunction
func (s *SQLStore) where(table string, pred types.Predicate) (types.Table, squirrel.And, error) {
	t, ok := s.schema.ByName(table)
	if !ok {
		return types.Table{}, nil, fmt.Errorf("unknown table %s", table)
	}

	where := squirrel.And{}
	if pred.Community != nil {
		where = append(where, squirrel.Eq{types.ColCommunity: types.Normalize(pred.Community)})
	}
	if !pred.IncludeDeleted {
		where = append(where, squirrel.Eq{types.ColDeleted: nil})
	}
	for _, c := range pred.Conditions {
		col, ok := t.Column(c.Column)
		if !ok {
			return types.Table{}, nil, fmt.Errorf("table %s has no column %s", t.Name, c.Column)
		}
		if col.Type == types.JSON {
			return types.Table{}, nil, fmt.Errorf("cannot filter on json column %s", c.Column)
		}
		cond, err := conditionSQL(c)
		if err != nil {
			return types.Table{}, nil, err
		}
		where = append(where, cond)
	}
	return t, where, nil
}

func conditionSQL(c types.Condition) (squirrel.Sqlizer, error) {
	v := types.Normalize(c.Value)
	switch c.Op {
	case types.OpEq:
		return squirrel.Eq{c.Column: v}, nil
	case types.OpNe:
		items, ok := c.Value.([]interface{})
		if !ok {
			return squirrel.NotEq{c.Column: v}, nil
		}
		// NOT IN with a NULL item never holds, and an empty NOT IN holds for NULL
		values := make([]interface{}, 0, len(items))
		for _, item := range items {
			if item != nil {
				values = append(values, types.Normalize(item))
			}
		}
		cond := squirrel.And{squirrel.NotEq{c.Column: nil}}
		if len(values) > 0 {
			cond = append(cond, squirrel.NotEq{c.Column: values})
		}
		return cond, nil
	case types.OpIn:
		items, ok := c.Value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("in condition on %s expects a list, got %T", c.Column, c.Value)
		}
		values := make([]interface{}, len(items))
		for i, item := range items {
			values[i] = types.Normalize(item)
		}
		return squirrel.Eq{c.Column: values}, nil
	}

	// comparisons with NULL never hold
	if v == nil {
		return squirrel.Expr("1=0"), nil
	}
	switch c.Op {
	case types.OpGt:
		return squirrel.Gt{c.Column: v}, nil
	case types.OpGte:
		return squirrel.GtOrEq{c.Column: v}, nil
	case types.OpLt:
		return squirrel.Lt{c.Column: v}, nil
	case types.OpLte:
		return squirrel.LtOrEq{c.Column: v}, nil
	default:
		return nil, fmt.Errorf("unsupported operator %s", c.Op)
	}
}

func scanRows(t types.Table, rows *sql.Rows) ([]types.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []types.Row{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}

		row := make(types.Row, len(cols))
		for i, name := range cols {
			col, _ := t.Column(name)
			v, err := decodeColumn(col, values[i])
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", t.Name, name, err)
			}
			row[name] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func decodeColumn(col types.Column, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if col.Type != types.JSON {
		return types.Normalize(v), nil
	}

	var text []byte
	switch x := v.(type) {
	case string:
		text = []byte(x)
	case []byte:
		text = x
	default:
		return nil, fmt.Errorf("unexpected %T for json column", v)
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	return normalizeValue(decoded), nil
}

// CreateTables creates the tables of the schema when they do not exist.
// squirrel has no DDL builder so the statements are assembled here from
// validated identifiers.
func (s *SQLStore) CreateTables(ctx context.Context) error {
	for _, t := range s.schema.Tables {
		defs := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			defs[i] = col.Name + " " + sqlType(col.Type)
			if col.Name == types.ColID {
				defs[i] += " PRIMARY KEY"
			}
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(defs, ", "))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func sqlType(ct types.ColumnType) string {
	switch ct {
	case types.Integer:
		return "BIGINT"
	default:
		return "TEXT"
	}
}

// Insert writes rows into a table. Missing columns are stored as NULL.
func (s *SQLStore) Insert(ctx context.Context, table string, rows ...types.Row) error {
	t, ok := s.schema.ByName(table)
	if !ok {
		return fmt.Errorf("unknown table %s", table)
	}
	if len(rows) == 0 {
		return nil
	}

	insert := s.sq.Insert(t.Name).Columns(t.ColumnNames()...)
	for _, r := range rows {
		row := normalizeRow(r)
		if err := validation.ValidateRow(t, row); err != nil {
			return err
		}
		values := make([]interface{}, len(t.Columns))
		for i, col := range t.Columns {
			v := row[col.Name]
			if col.Type == types.JSON && v != nil {
				b, err := json.Marshal(v)
				if err != nil {
					return fmt.Errorf("encode %s.%s: %w", t.Name, col.Name, err)
				}
				v = string(b)
			}
			values[i] = v
		}
		insert = insert.Values(values...)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", t.Name, err)
	}
	return nil
}

// Load inserts every table of a fixture document
func (s *SQLStore) Load(ctx context.Context, tables map[string][]types.Row) error {
	for _, t := range s.schema.Tables {
		if err := s.Insert(ctx, t.Name, tables[t.Name]...); err != nil {
			return err
		}
	}
	return nil
}
