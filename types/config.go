package types

import (
	"sort"
	"strings"
)

// Well-known column names shared by every table
const (
	ColID          = "id"
	ColCommunity   = "community_id"
	ColType        = "type"
	ColAttributes  = "attributes"
	ColCreated     = "created_epoch"
	ColModified    = "modified_epoch"
	ColDeleted     = "deleted_epoch"
	ColOwner       = "owner_id"
	ColProfileRef  = "profile_ref"
	ColEntityRef   = "entity_ref"
	AttributesPath = "attribute"
)

// ColumnType defines how a column is stored and compared
type ColumnType int

const (
	// Integer columns hold ids, references and epochs
	Integer ColumnType = iota
	// Text columns hold short strings such as the row type
	Text
	// JSON columns hold a decoded attributes blob
	JSON
)

// String returns the string representation of the ColumnType
func (ct ColumnType) String() string {
	switch ct {
	case Integer:
		return "integer"
	case Text:
		return "text"
	case JSON:
		return "json"
	default:
		return "unknown"
	}
}

// Column declares a single column of a table
type Column struct {
	Name string
	Type ColumnType
}

// Table declares the columns of one entity kind
type Table struct {
	// Name is the table name used by the Store
	Name string

	// Kind is the query-language name, e.g. "Profile"
	Kind string

	// Plural is used by the Count<Plural> selector shortcut, e.g. "Profiles"
	Plural string

	Columns []Column
}

// Column returns the named column
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Alias returns the default ancestor alias bound by nodes over this table
func (t Table) Alias() string {
	return strings.ToLower(t.Kind)
}

// Schema is the set of queryable tables
type Schema struct {
	Tables []Table
}

// ByKind returns the table whose Kind is kind
func (s Schema) ByKind(kind string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Kind == kind {
			return t, true
		}
	}
	return Table{}, false
}

// ByPlural returns the table whose Plural is plural
func (s Schema) ByPlural(plural string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Plural == plural {
			return t, true
		}
	}
	return Table{}, false
}

// ByName returns the table named name
func (s Schema) ByName(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Kinds returns the sorted kind names of all tables
func (s Schema) Kinds() []string {
	kinds := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		kinds[i] = t.Kind
	}
	sort.Strings(kinds)
	return kinds
}

func baseColumns(extra ...Column) []Column {
	cols := []Column{
		{Name: ColID, Type: Integer},
		{Name: ColCommunity, Type: Integer},
		{Name: ColType, Type: Text},
	}
	cols = append(cols, extra...)
	return append(cols,
		Column{Name: ColAttributes, Type: JSON},
		Column{Name: ColCreated, Type: Integer},
		Column{Name: ColModified, Type: Integer},
		Column{Name: ColDeleted, Type: Integer},
	)
}

// DefaultSchema returns the profile/entity/action schema
func DefaultSchema() Schema {
	return Schema{Tables: []Table{
		{
			Name:    "profile",
			Kind:    "Profile",
			Plural:  "Profiles",
			Columns: baseColumns(),
		},
		{
			Name:   "entity",
			Kind:   "Entity",
			Plural: "Entities",
			Columns: baseColumns(
				Column{Name: ColOwner, Type: Integer},
				Column{Name: ColProfileRef, Type: Integer},
				Column{Name: ColEntityRef, Type: Integer},
			),
		},
		{
			Name:   "action",
			Kind:   "Action",
			Plural: "Actions",
			Columns: baseColumns(
				Column{Name: ColOwner, Type: Integer},
				Column{Name: ColProfileRef, Type: Integer},
				Column{Name: ColEntityRef, Type: Integer},
			),
		},
	}}
}
