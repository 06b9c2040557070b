package formats

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// JSON writes indented JSON with the key order of the query
var JSON = &Format{
	Name:      "json",
	Extension: ".json",
	Render: func(w io.Writer, v interface{}) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	},
}

// YAML writes a yaml document with the key order of the query
var YAML = &Format{
	Name:      "yaml",
	Extension: ".yaml",
	Render: func(w io.Writer, v interface{}) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	mustRegister(JSON)
	mustRegister(YAML)
}
