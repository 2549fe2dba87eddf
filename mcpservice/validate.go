package mcpservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/ggoodman/mcp-sse-server-go/mcp"
)

// ValidateArguments checks raw tool arguments against schema. Absent or null
// arguments are treated as an empty object. The returned error, if any, is
// an *ArgumentError describing the first violation found.
func ValidateArguments(tool string, schema mcp.ToolInputSchema, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &ArgumentError{Tool: tool, Violation: "arguments are not valid JSON"}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return &ArgumentError{Tool: tool, Violation: "arguments must be an object, got " + jsonType(v)}
	}

	root := mcp.SchemaProperty{Type: "object", Properties: schema.Properties, Required: schema.Required}
	if path, msg := checkObject("", root, obj, schema.AdditionalProperties); msg != "" {
		return &ArgumentError{Tool: tool, Path: path, Violation: msg}
	}
	return nil
}

func checkObject(path string, p mcp.SchemaProperty, obj map[string]any, allowAdditional bool) (string, string) {
	for _, name := range p.Required {
		if v, ok := obj[name]; !ok || v == nil {
			return join(path, name), "required property is missing"
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		prop, declared := p.Properties[k]
		if !declared {
			if !allowAdditional {
				return join(path, k), "unexpected property"
			}
			continue
		}
		if at, msg := checkValue(join(path, k), prop, obj[k]); msg != "" {
			return at, msg
		}
	}
	return "", ""
}

func checkValue(path string, p mcp.SchemaProperty, v any) (string, string) {
	if p.Type != "" && !typeMatches(p.Type, v) {
		return path, fmt.Sprintf("expected %s, got %s", p.Type, jsonType(v))
	}

	if len(p.Enum) > 0 && !inEnum(p.Enum, v) {
		return path, fmt.Sprintf("value is not one of %v", p.Enum)
	}

	switch tv := v.(type) {
	case string:
		n := uint64(utf8.RuneCountInString(tv))
		if p.MinLength != nil && n < *p.MinLength {
			return path, fmt.Sprintf("must be at least %d characters", *p.MinLength)
		}
		if p.MaxLength != nil && n > *p.MaxLength {
			return path, fmt.Sprintf("must be at most %d characters", *p.MaxLength)
		}
	case []any:
		if p.Items != nil {
			for i, item := range tv {
				if at, msg := checkValue(fmt.Sprintf("%s[%d]", path, i), *p.Items, item); msg != "" {
					return at, msg
				}
			}
		}
	case map[string]any:
		// Nested objects are only checked when they declare properties.
		if p.Properties != nil {
			return checkObject(path, p, tv, false)
		}
	}
	return "", ""
}

func typeMatches(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		_, ok := v.(json.Number)
		return ok
	case "integer":
		n, ok := v.(json.Number)
		if !ok {
			return false
		}
		f, err := n.Float64()
		return err == nil && f == math.Trunc(f)
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "null":
		return v == nil
	default:
		return true
	}
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if fmt.Sprint(normalize(e)) == fmt.Sprint(normalize(v)) && jsonType(e) == jsonType(v) {
			return true
		}
	}
	return false
}

func normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err == nil {
			return f
		}
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return v
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
