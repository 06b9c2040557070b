// Package doc holds the ordered tree representation of query documents and
// results. Query documents are parsed from JSON or YAML with key order
// preserved, so that Include mappings produce output objects in the order the
// author wrote them.
//
// A document value is one of: nil, bool, int64, float64, string,
// []interface{} or Object.
package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/arthur-debert/nanoquery/types"
	"gopkg.in/yaml.v3"
)

// Field is a single key/value pair of an Object
type Field struct {
	Key   string
	Value interface{}
}

// Object is an ordered mapping
type Object []Field

// Get returns the value stored under key
func (o Object) Get(key string) (interface{}, bool) {
	for _, f := range o {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present
func (o Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Keys returns the keys in document order
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, f := range o {
		keys[i] = f.Key
	}
	return keys
}

// Set replaces the value under key or appends a new field
func (o Object) Set(key string, value interface{}) Object {
	for i, f := range o {
		if f.Key == key {
			o[i].Value = value
			return o
		}
	}
	return append(o, Field{Key: key, Value: value})
}

// MarshalJSON writes the fields in order
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML keeps the field order when rendered as YAML
func (o Object) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range o {
		var val yaml.Node
		if err := val.Encode(f.Value); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key},
			&val,
		)
	}
	return node, nil
}

// Plain converts a document value into plain Go maps and slices, losing key
// order. Used where a library expects encoding/json shaped values.
func Plain(v interface{}) interface{} {
	switch x := v.(type) {
	case Object:
		m := make(map[string]interface{}, len(x))
		for _, f := range x {
			m[f.Key] = Plain(f.Value)
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = Plain(e)
		}
		return out
	default:
		return x
	}
}

// FromGo converts plain Go values (as produced by encoding/json) into a
// document value. Map keys are sorted since their order is unknown.
func FromGo(v interface{}) interface{} {
	switch x := v.(type) {
	case Object:
		out := make(Object, len(x))
		for i, f := range x {
			out[i] = Field{Key: f.Key, Value: FromGo(f.Value)}
		}
		return out
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Object, 0, len(x))
		for _, k := range keys {
			out = append(out, Field{Key: k, Value: FromGo(x[k])})
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = FromGo(e)
		}
		return out
	default:
		return types.Normalize(x)
	}
}
