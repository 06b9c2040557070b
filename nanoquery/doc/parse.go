package doc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/arthur-debert/nanoquery/types"
	"gopkg.in/yaml.v3"
)

// ErrEmpty is returned when the input holds no document
var ErrEmpty = errors.New("empty query document")

const (
	// MaxDepth bounds the nesting of objects and lists in a document
	MaxDepth = 64
	// maxValues bounds the values a document expands to, aliases included
	maxValues = 100000
)

// decoder carries the limits shared by one Parse call
type decoder struct {
	values int
	// anchors being expanded on the current path
	expanding map[*yaml.Node]bool
}

func (d *decoder) enter(depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("document nested deeper than %d levels", MaxDepth)
	}
	d.values++
	if d.values > maxValues {
		return fmt.Errorf("document expands to more than %d values", maxValues)
	}
	return nil
}

// Parse decodes a JSON or YAML document into an ordered document value.
// Input starting with '{' or '[' is read as JSON, anything else as YAML.
func Parse(data []byte) (interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmpty
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return parseJSON(trimmed)
	}

	d := &decoder{expanding: map[*yaml.Node]bool{}}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse query document: %w", err)
	}
	if root.Kind == 0 || (root.Kind == yaml.DocumentNode && len(root.Content) == 0) {
		return nil, ErrEmpty
	}
	return d.fromNode(&root, 0)
}

// ParseObject is Parse for documents whose root must be a mapping
func ParseObject(data []byte) (Object, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("query document must be an object, got %s", types.Describe(v))
	}
	return obj, nil
}

func (d *decoder) fromNode(n *yaml.Node, depth int) (interface{}, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) != 1 {
			return nil, fmt.Errorf("line %d: expected a single document", n.Line)
		}
		return d.fromNode(n.Content[0], depth)
	case yaml.AliasNode:
		if n.Alias == nil || d.expanding[n.Alias] {
			return nil, fmt.Errorf("line %d: alias *%s refers to itself", n.Line, n.Value)
		}
		return d.fromNode(n.Alias, depth)
	}

	if err := d.enter(depth); err != nil {
		return nil, fmt.Errorf("line %d: %w", n.Line, err)
	}
	if n.Anchor != "" {
		d.expanding[n] = true
		defer delete(d.expanding, n)
	}
	switch n.Kind {
	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := d.fromNode(c, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(Object, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, vn := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: object keys must be strings", k.Line)
			}
			if out.Has(k.Value) {
				return nil, fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
			}
			v, err := d.fromNode(vn, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, Field{Key: k.Value, Value: v})
		}
		return out, nil
	case yaml.ScalarNode:
		return fromScalar(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
	}
}

func fromScalar(n *yaml.Node) (interface{}, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return i, nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return f, nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return types.Normalize(f), nil
	default:
		return n.Value, nil
	}
}

func parseJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	d := &decoder{}
	v, err := d.decodeJSON(dec, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query document: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("failed to parse query document: trailing data after document")
	}
	return v, nil
}

func (d *decoder) decodeJSON(dec *json.Decoder, depth int) (interface{}, error) {
	if err := d.enter(depth); err != nil {
		return nil, err
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			out := Object{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key := keyTok.(string)
				if out.Has(key) {
					return nil, fmt.Errorf("duplicate key %q", key)
				}
				v, err := d.decodeJSON(dec, depth+1)
				if err != nil {
					return nil, err
				}
				out = append(out, Field{Key: key, Value: v})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return out, nil
		case '[':
			out := []interface{}{}
			for dec.More() {
				v, err := d.decodeJSON(dec, depth+1)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return out, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		return types.Normalize(t), nil
	default:
		// string, bool or nil
		return t, nil
	}
}
