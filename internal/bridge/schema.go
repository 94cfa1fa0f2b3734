package bridge

import (
	"fmt"

	"forest/internal/types"
)

// Schema is a structural output contract sent alongside a prompt:
//
//	{
//	  "required": ["title", "description"],
//	  "properties": {
//	    "title":  {"type": "string"},
//	    "level":  {"type": "number"},
//	    "focus":  {"enum": ["theory", "hands-on", "project", "balanced"]}
//	  }
//	}
//
// Validation is structural only: required keys must be present, typed
// fields check primitive kind, enum fields check membership. Unknown keys
// are allowed.
type Schema map[string]interface{}

// Required returns the schema's required key list.
func (s Schema) Required() []string {
	raw, ok := s["required"].([]interface{})
	if ok {
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if str, isStr := v.(string); isStr {
				out = append(out, str)
			}
		}
		return out
	}
	if typed, ok := s["required"].([]string); ok {
		return typed
	}
	return nil
}

func (s Schema) properties() map[string]interface{} {
	props, _ := s["properties"].(map[string]interface{})
	return props
}

// Validate checks data against schema. Errors name the missing or
// offending key and the expected kind.
func Validate(data map[string]interface{}, schema Schema) error {
	if len(schema) == 0 {
		return nil
	}

	for _, key := range schema.Required() {
		if _, present := data[key]; !present {
			return types.Validation(key, "missing required field %q", key)
		}
	}

	for key, rawSpec := range schema.properties() {
		value, present := data[key]
		if !present {
			continue
		}
		spec, ok := rawSpec.(map[string]interface{})
		if !ok {
			continue
		}
		if err := checkKind(key, value, spec); err != nil {
			return err
		}
		if err := checkEnum(key, value, spec); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(key string, value interface{}, spec map[string]interface{}) error {
	want, _ := spec["type"].(string)
	if want == "" {
		return nil
	}
	if kindMatches(want, value) {
		return nil
	}
	return types.Validation(key, "field %q: expected %s, got %T", key, want, value)
}

func kindMatches(want string, value interface{}) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "integer":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	default:
		// Unknown kind names are tolerated rather than rejected.
		return true
	}
}

func checkEnum(key string, value interface{}, spec map[string]interface{}) error {
	raw, ok := spec["enum"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	for _, allowed := range raw {
		if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", value) {
			return nil
		}
	}
	return types.Validation(key, "field %q: value %v not in enum %v", key, value, raw)
}
