package schema

import (
	"fmt"
	"strconv"
)

// Convert recursively turns a JSON-Schema fragment into a RuntimeSchema
// tree (§4.5.3). Unrecognized shapes fall back to KindUnknown rather than
// failing — schema conversion is permissive by design so that discovery
// can keep going on partial metadata.
func Convert(js map[string]any) *RuntimeSchema {
	if js == nil {
		return &RuntimeSchema{Kind: KindUnknown, Raw: map[string]any{}}
	}

	node := &RuntimeSchema{Raw: js}
	if d, ok := js["description"].(string); ok {
		node.Description = d
	}

	if members, ok := unionMembers(js, "oneOf"); ok {
		node.Kind = KindUnion
		node.Members = members
		return node
	}
	if members, ok := unionMembers(js, "anyOf"); ok {
		node.Kind = KindUnion
		node.Members = members
		return node
	}
	if members, ok := unionMembers(js, "allOf"); ok {
		node.Kind = KindIntersection
		node.AllOf = members
		return node
	}
	if enumRaw, ok := js["enum"].([]any); ok {
		node.Kind = KindUnion
		node.EnumValues = enumRaw
		return node
	}

	typ, _ := js["type"].(string)
	switch typ {
	case "object":
		node.Kind = KindObject
		props, _ := js["properties"].(map[string]any)
		if props == nil {
			node.Kind = KindUnknown
			return node
		}
		node.Properties = make(map[string]*RuntimeSchema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				node.Properties[name] = Convert(sub)
			} else {
				node.Properties[name] = &RuntimeSchema{Kind: KindUnknown}
			}
		}
		node.Required = make(map[string]bool)
		if req, ok := js["required"].([]any); ok {
			for _, r := range req {
				if name, ok := r.(string); ok {
					node.Required[name] = true
				}
			}
		}
		return node

	case "array":
		node.Kind = KindArray
		if items, ok := js["items"].(map[string]any); ok {
			node.Items = Convert(items)
		}
		return node

	case "string":
		node.Kind = KindString
		if v, ok := toIntPtr(js["minLength"]); ok {
			node.MinLength = v
		}
		if v, ok := toIntPtr(js["maxLength"]); ok {
			node.MaxLength = v
		}
		if p, ok := js["pattern"].(string); ok {
			node.Pattern = p
		}
		if f, ok := js["format"].(string); ok {
			node.Format = f
		}
		return node

	case "integer", "number":
		if typ == "integer" {
			node.Kind = KindInteger
		} else {
			node.Kind = KindNumber
		}
		if v, ok := toFloat64Ptr(js["minimum"]); ok {
			node.Minimum = v
		}
		if v, ok := toFloat64Ptr(js["maximum"]); ok {
			node.Maximum = v
		}
		if v, ok := toFloat64Ptr(js["exclusiveMinimum"]); ok {
			node.ExclusiveMinimum = v
		}
		if v, ok := toFloat64Ptr(js["exclusiveMaximum"]); ok {
			node.ExclusiveMaximum = v
		}
		if v, ok := toFloat64Ptr(js["multipleOf"]); ok {
			node.MultipleOf = v
		}
		return node

	case "boolean":
		node.Kind = KindBoolean
		return node

	case "null":
		node.Kind = KindNull
		return node

	default:
		node.Kind = KindUnknown
		return node
	}
}

func unionMembers(js map[string]any, key string) ([]*RuntimeSchema, bool) {
	raw, ok := js[key].([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	members := make([]*RuntimeSchema, 0, len(raw))
	for _, m := range raw {
		if sub, ok := m.(map[string]any); ok {
			members = append(members, Convert(sub))
		}
	}
	return members, true
}

func toFloat64Ptr(v any) (*float64, bool) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, false
	}
	return &f, true
}

func toIntPtr(v any) (*int, bool) {
	n, err := toInt(v)
	if err != nil {
		return nil, false
	}
	return &n, true
}

// toFloat64 converts common numeric representations (including those
// produced by a YAML/JSON decode) to float64.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// toInt converts common numeric representations to int.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}
