package formats

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arthur-debert/nanoquery/nanoquery/doc"
)

// PlainText format implementation
//   - objects: one "key: value" line per field, nested values indented below "key:"
//   - lists: one "- " line per item
//   - scalars: the bare value, null for missing values
var PlainText = &Format{
	Name:      "plaintext",
	Extension: ".txt",
	Render: func(w io.Writer, v interface{}) error {
		value, err := toDocument(v)
		if err != nil {
			return err
		}
		var b strings.Builder
		writeValue(&b, value, 0)
		_, err = io.WriteString(w, b.String())
		return err
	},
}

func init() {
	mustRegister(PlainText)
}

// toDocument brings arbitrary values (responses, list results) into the
// doc value space by a JSON round trip, which keeps their field order
func toDocument(v interface{}) (interface{}, error) {
	switch v.(type) {
	case nil, string, bool, int64, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return doc.Parse(data)
}

func writeValue(b *strings.Builder, v interface{}, depth int) {
	indent := strings.Repeat("  ", depth)
	switch x := v.(type) {
	case doc.Object:
		if len(x) == 0 {
			b.WriteString(indent + "{}\n")
			return
		}
		for _, f := range x {
			if isScalar(f.Value) {
				b.WriteString(indent + f.Key + ": " + formatValue(f.Value) + "\n")
				continue
			}
			b.WriteString(indent + f.Key + ":\n")
			writeValue(b, f.Value, depth+1)
		}
	case []interface{}:
		if len(x) == 0 {
			b.WriteString(indent + "[]\n")
			return
		}
		for _, item := range x {
			if isScalar(item) {
				b.WriteString(indent + "- " + formatValue(item) + "\n")
				continue
			}
			b.WriteString(indent + "-\n")
			writeValue(b, item, depth+1)
		}
	default:
		b.WriteString(indent + formatValue(x) + "\n")
	}
}

func isScalar(v interface{}) bool {
	switch x := v.(type) {
	case doc.Object:
		return len(x) == 0
	case []interface{}:
		return len(x) == 0
	default:
		return true
	}
}

// formatValue converts a value to string representation
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case time.Time:
		return v.Format(time.RFC3339)
	case string:
		return v
	case doc.Object:
		return "{}"
	case []interface{}:
		return "[]"
	default:
		return fmt.Sprintf("%v", v)
	}
}
