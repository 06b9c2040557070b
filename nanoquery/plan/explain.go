package plan

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/nanoquery/types"
)

// Format renders a plan tree as indented text, one node or producer per line
func Format(n Node) string {
	var b strings.Builder
	formatNode(&b, n, 0)
	return b.String()
}

func formatNode(b *strings.Builder, n Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch x := n.(type) {
	case *Count:
		fmt.Fprintf(b, "%sCount %s%s\n", indent, x.Table.Name, formatSelection(&x.Selection))
	case *Singleton:
		fmt.Fprintf(b, "%sSingleton %s as %s%s\n", indent, x.Table.Name,
			strings.Join(x.Names, "|"), formatSelection(&x.Selection))
		formatExtractor(b, x.Extract, depth+1)
	case *List:
		fmt.Fprintf(b, "%sList %s as %s%s order %s limit %d offset %d\n", indent, x.Table.Name,
			strings.Join(x.Names, "|"), formatSelection(&x.Selection), formatSort(x.Sort), x.Limit, x.Offset)
		formatExtractor(b, x.Extract, depth+1)
	}
}

func formatSelection(s *Selection) string {
	if len(s.Filters) == 0 && !s.IncludeDeleted {
		return ""
	}
	parts := make([]string, 0, len(s.Filters)+1)
	for _, f := range s.Filters {
		parts = append(parts, f.String())
	}
	if s.IncludeDeleted {
		parts = append(parts, "with deleted")
	}
	return " where " + strings.Join(parts, " and ")
}

func formatSort(sorts []types.Sort) string {
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		dir := "asc"
		if s.Descending {
			dir = "desc"
		}
		parts[i] = s.Column + " " + dir
	}
	return strings.Join(parts, ", ")
}

func formatExtractor(b *strings.Builder, e Extractor, depth int) {
	indent := strings.Repeat("  ", depth)
	switch x := e.(type) {
	case Yield:
		formatProducer(b, "yield", x.Producer, depth)
	case Fields:
		for _, f := range x {
			formatProducer(b, f.Key, f.Producer, depth)
		}
	case Case:
		for i, br := range x {
			conds := make([]string, len(br.Matches))
			for j, m := range br.Matches {
				conds[j] = fmt.Sprintf("%s = %s", m.Ref, types.Describe(m.Value))
			}
			if len(conds) == 0 {
				conds = append(conds, "default")
			}
			fmt.Fprintf(b, "%scase %d: %s\n", indent, i, strings.Join(conds, " and "))
			formatExtractor(b, br.Extract, depth+1)
		}
	}
}

func formatProducer(b *strings.Builder, key string, p Producer, depth int) {
	indent := strings.Repeat("  ", depth)
	if p.Child == nil {
		fmt.Fprintf(b, "%s%s: %s\n", indent, key, p.Ref)
		return
	}
	fmt.Fprintf(b, "%s%s:\n", indent, key)
	formatNode(b, p.Child, depth+1)
}

// String renders the filter as it appears in Format output
func (f Filter) String() string {
	switch {
	case f.Ref != nil:
		return fmt.Sprintf("%s %s %s", f.Column, f.Op, f.Ref)
	case f.Window != nil:
		dir := "older than"
		if f.Window.Newer {
			dir = "newer than"
		}
		return fmt.Sprintf("%s %s %s", f.Column, dir, f.Window.Span)
	default:
		return fmt.Sprintf("%s %s %s", f.Column, f.Op, types.Describe(f.Value))
	}
}
