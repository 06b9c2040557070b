package grammar

import (
	"fmt"
	"sort"

	"github.com/arthur-debert/nanoquery/nanoquery/doc"
	"github.com/arthur-debert/nanoquery/nanoquery/qerr"
	"github.com/xeipuuv/gojsonschema"
)

// shapeJSONSchema constrains the value types of the extractor and limitor
// fields of a single query node. Selector keys and nesting are checked by
// the validator itself.
const shapeJSONSchema = `{
  "type": "object",
  "properties": {
    "Include": {"type": ["string", "object"]},
    "Case": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["Include"],
        "properties": {"Include": {"type": ["string", "object"]}}
      }
    },
    "As": {"type": "string", "minLength": 1},
    "SortBy": {"type": "string", "minLength": 1},
    "Order": {"enum": ["ascending", "descending"]},
    "Limit": {"type": "integer", "minimum": 1},
    "Offset": {"type": "integer", "minimum": 0}
  }
}`

type shapeSchema struct {
	schema *gojsonschema.Schema
}

func newShapeSchema() (*shapeSchema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(shapeJSONSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid shape schema: %w", err)
	}
	return &shapeSchema{schema: schema}, nil
}

// check validates only the field types of obj, not its nested queries
func (s *shapeSchema) check(obj doc.Object) []qerr.Problem {
	// nested values are irrelevant to the schema and may be large
	shallow := make(map[string]interface{}, len(obj))
	for _, f := range obj {
		switch v := f.Value.(type) {
		case doc.Object:
			shallow[f.Key] = map[string]interface{}{}
		case []interface{}:
			items := make([]interface{}, len(v))
			for i, item := range v {
				if branch, ok := item.(doc.Object); ok {
					items[i] = shallowBranch(branch)
				} else {
					items[i] = item
				}
			}
			shallow[f.Key] = items
		default:
			shallow[f.Key] = v
		}
	}

	result, err := s.schema.Validate(gojsonschema.NewGoLoader(shallow))
	if err != nil {
		return []qerr.Problem{{Data: obj, Problem: fmt.Sprintf("schema validation error: %v", err)}}
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	sort.Strings(msgs)

	problems := make([]qerr.Problem, len(msgs))
	for i, m := range msgs {
		problems[i] = qerr.Problem{Data: obj, Problem: m}
	}
	return problems
}

func shallowBranch(branch doc.Object) map[string]interface{} {
	out := make(map[string]interface{}, len(branch))
	for _, f := range branch {
		if _, ok := f.Value.(doc.Object); ok {
			out[f.Key] = map[string]interface{}{}
			continue
		}
		out[f.Key] = f.Value
	}
	return out
}
