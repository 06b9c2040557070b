package ref

import "github.com/arthur-debert/nanoquery/types"

// Frame is the compile-time view of an enclosing query node: the names it
// binds and the table its rows come from
type Frame struct {
	Names []string
	Table types.Table
}

// Alias returns the canonical alias of the frame
func (f Frame) Alias() string {
	if len(f.Names) == 0 {
		return f.Table.Alias()
	}
	return f.Names[0]
}

// Binds reports whether the frame binds name
func (f Frame) Binds(name string) bool {
	for _, n := range f.Names {
		if n == name {
			return true
		}
	}
	return false
}

// Scope is the stack of enclosing frames, outermost first
type Scope []Frame

// Push returns a new scope with f as the innermost frame. The receiver is
// never modified so sibling sub-queries can share it.
func (s Scope) Push(f Frame) Scope {
	out := make(Scope, len(s), len(s)+1)
	copy(out, s)
	return append(out, f)
}

// At returns the frame depth levels up, 1 being the innermost
func (s Scope) At(depth int) (Frame, bool) {
	if depth < 1 || depth > len(s) {
		return Frame{}, false
	}
	return s[len(s)-depth], true
}

// Lookup finds the innermost frame binding name and its depth
func (s Scope) Lookup(name string) (int, Frame, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Binds(name) {
			return len(s) - i, s[i], true
		}
	}
	return 0, Frame{}, false
}

// Names returns every name bound in scope, innermost first
func (s Scope) Names() []string {
	var names []string
	for i := len(s) - 1; i >= 0; i-- {
		names = append(names, s[i].Names...)
	}
	return names
}

// Entry is the execution-time counterpart of a Frame: the current row of an
// enclosing node
type Entry struct {
	Alias string
	Row   types.Row
}

// Ancestry is the stack of enclosing rows, outermost first
type Ancestry []Entry

// Push returns a new ancestry with e innermost, leaving the receiver intact
func (a Ancestry) Push(e Entry) Ancestry {
	out := make(Ancestry, len(a), len(a)+1)
	copy(out, a)
	return append(out, e)
}

// At returns the entry depth levels up, 1 being the innermost
func (a Ancestry) At(depth int) (Entry, bool) {
	if depth < 1 || depth > len(a) {
		return Entry{}, false
	}
	return a[len(a)-depth], true
}

// Snapshot renders the ancestry as alias -> row for diagnostics. Inner
// entries win over outer ones with the same alias.
func (a Ancestry) Snapshot() map[string]types.Row {
	if len(a) == 0 {
		return nil
	}
	out := make(map[string]types.Row, len(a))
	for _, e := range a {
		out[e.Alias] = e.Row
	}
	return out
}
