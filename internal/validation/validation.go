package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/arthur-debert/nanoquery/types"
)

// requiredColumns must exist in every table for the engine to scope, filter
// and extract rows
var requiredColumns = map[string]types.ColumnType{
	types.ColID:         types.Integer,
	types.ColCommunity:  types.Integer,
	types.ColAttributes: types.JSON,
	types.ColDeleted:    types.Integer,
}

// ValidateSchema checks the schema for consistency
func ValidateSchema(schema types.Schema) error {
	if len(schema.Tables) == 0 {
		return fmt.Errorf("at least one table must be configured")
	}

	names := make(map[string]bool)
	kinds := make(map[string]bool)
	plurals := make(map[string]bool)
	for _, t := range schema.Tables {
		if t.Name == "" || t.Kind == "" || t.Plural == "" {
			return fmt.Errorf("table %q: name, kind and plural are required", t.Name)
		}
		if !IsValidIdentifier(t.Name) {
			return fmt.Errorf("table %q: name contains invalid characters", t.Name)
		}
		if IsReservedColumnName(t.Name) {
			return fmt.Errorf("table %q: '%s' is a reserved name", t.Name, t.Name)
		}
		if names[t.Name] {
			return fmt.Errorf("duplicate table name: %s", t.Name)
		}
		if kinds[t.Kind] {
			return fmt.Errorf("duplicate kind: %s", t.Kind)
		}
		if plurals[t.Plural] {
			return fmt.Errorf("duplicate plural: %s", t.Plural)
		}
		names[t.Name], kinds[t.Kind], plurals[t.Plural] = true, true, true

		if err := validateColumns(t); err != nil {
			return err
		}
	}
	return nil
}

// validateColumns validates the columns of a single table
func validateColumns(t types.Table) error {
	seen := make(map[string]bool)
	for _, col := range t.Columns {
		if col.Name == "" {
			return fmt.Errorf("table %s: column name cannot be empty", t.Name)
		}
		if !IsValidIdentifier(col.Name) {
			return fmt.Errorf("table %s: column '%s' contains invalid characters", t.Name, col.Name)
		}
		if IsReservedColumnName(col.Name) {
			return fmt.Errorf("table %s: '%s' is a reserved column name", t.Name, col.Name)
		}
		// the attribute path prefix would shadow a real column
		if col.Name == types.AttributesPath {
			return fmt.Errorf("table %s: '%s' is reserved for attribute paths", t.Name, col.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("table %s: duplicate column name: %s", t.Name, col.Name)
		}
		seen[col.Name] = true
	}

	for name, typ := range requiredColumns {
		col, ok := t.Column(name)
		if !ok {
			return fmt.Errorf("table %s: missing required column %s", t.Name, name)
		}
		if col.Type != typ {
			return fmt.Errorf("table %s: column %s must be %s, got %s", t.Name, name, typ, col.Type)
		}
	}
	return nil
}

// IsReservedColumnName checks if a name is an SQL keyword that would need
// quoting in generated statements
func IsReservedColumnName(name string) bool {
	reserved := []string{
		"select", "from", "where", "order", "by", "group", "having", "limit", "offset",
		"insert", "update", "delete", "create", "drop", "alter", "table", "index",
	}

	name = strings.ToLower(name)
	for _, reservedName := range reserved {
		if name == reservedName {
			return true
		}
	}

	return false
}

// IsValidIdentifier checks that name only holds lowercase letters, digits
// and underscores and does not start with a digit
func IsValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ValidateSimpleType ensures a column value of a fixture row is a simple
// type (string, number, bool) or nil
func ValidateSimpleType(value interface{}, column string) error {
	if value == nil {
		return nil
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Slice, reflect.Array:
		return fmt.Errorf("column '%s' cannot be an array/slice type, got %T", column, value)
	case reflect.Map:
		return fmt.Errorf("column '%s' cannot be a map type, got %T", column, value)
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return ValidateSimpleType(v.Elem().Interface(), column)
	case reflect.Struct:
		if _, ok := value.(time.Time); ok {
			return nil
		}
		return fmt.Errorf("column '%s' cannot be a struct type, got %T", column, value)
	default:
		return fmt.Errorf("column '%s' must be a simple type (string, number, or bool), got %T", column, value)
	}
}

// ValidateRow checks a row against the columns of its table. JSON columns
// must hold an object; other columns must hold simple values.
func ValidateRow(t types.Table, row types.Row) error {
	if _, ok := types.AsInt(row.ID()); !ok {
		return fmt.Errorf("table %s: row without integer id: %v", t.Name, row.ID())
	}
	for key, value := range row {
		col, ok := t.Column(key)
		if !ok {
			return fmt.Errorf("table %s: row %v has unknown column %s", t.Name, row.ID(), key)
		}
		if col.Type == types.JSON {
			if value == nil {
				continue
			}
			if _, isMap := value.(map[string]interface{}); !isMap {
				return fmt.Errorf("table %s: row %v column %s must be an object, got %T", t.Name, row.ID(), key, value)
			}
			continue
		}
		if err := ValidateSimpleType(value, key); err != nil {
			return fmt.Errorf("table %s: row %v: %w", t.Name, row.ID(), err)
		}
	}
	return nil
}
