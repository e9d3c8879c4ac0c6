package schema

import "sort"

// Strict applies the strict-mode transform (§4.5.6) to a JSON-Schema
// fragment: additionalProperties:false, every property promoted to
// required, optional properties rewritten as nullable. Idempotent:
// Strict(Strict(x)) is structurally equal to Strict(x).
func Strict(js map[string]any) map[string]any {
	return strictNode(js, false)
}

// strictNode transforms one JSON-Schema node. optional indicates whether
// the node itself (not its children) was an optional property of its
// parent and must be made nullable.
func strictNode(js map[string]any, optional bool) map[string]any {
	if js == nil {
		return nil
	}
	out := deepCopyMap(js)

	if typ, _ := out["type"].(string); typ == "object" {
		out["additionalProperties"] = false

		props, _ := out["properties"].(map[string]any)
		requiredSet := map[string]bool{}
		if req, ok := out["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					requiredSet[s] = true
				}
			}
		}

		if props != nil {
			newProps := make(map[string]any, len(props))
			for name, raw := range props {
				sub, ok := raw.(map[string]any)
				if !ok {
					newProps[name] = raw
					continue
				}
				newProps[name] = strictNode(sub, !requiredSet[name])
			}
			out["properties"] = newProps

			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			allRequired := make([]any, len(names))
			for i, name := range names {
				allRequired[i] = name
			}
			out["required"] = allRequired
		}
	}

	for _, key := range []string{"items"} {
		if sub, ok := out[key].(map[string]any); ok {
			out[key] = strictNode(sub, false)
		}
	}
	for _, key := range []string{"oneOf", "anyOf", "allOf"} {
		if arr, ok := out[key].([]any); ok {
			newArr := make([]any, len(arr))
			for i, m := range arr {
				if sub, ok := m.(map[string]any); ok {
					newArr[i] = strictNode(sub, false)
				} else {
					newArr[i] = m
				}
			}
			out[key] = newArr
		}
	}
	for _, key := range []string{"definitions", "$defs"} {
		if defs, ok := out[key].(map[string]any); ok {
			newDefs := make(map[string]any, len(defs))
			for name, raw := range defs {
				if sub, ok := raw.(map[string]any); ok {
					newDefs[name] = strictNode(sub, false)
				} else {
					newDefs[name] = raw
				}
			}
			out[key] = newDefs
		}
	}

	if optional {
		out = makeNullable(out)
	}

	return out
}

// makeNullable wraps a non-required property schema so null is an
// accepted value, without ever double-adding "null".
func makeNullable(node map[string]any) map[string]any {
	switch typ := node["type"].(type) {
	case string:
		if typ == "null" {
			return node
		}
		node = deepCopyMap(node)
		node["type"] = []any{typ, "null"}
		return node
	case []any:
		for _, t := range typ {
			if s, ok := t.(string); ok && s == "null" {
				return node
			}
		}
		node = deepCopyMap(node)
		node["type"] = append(append([]any{}, typ...), "null")
		return node
	default:
		// No scalar "type" key (e.g. oneOf/enum-only schema): wrap in
		// oneOf with a null schema instead.
		return map[string]any{"oneOf": []any{node, map[string]any{"type": "null"}}}
	}
}

// StripExtensions removes every key starting with "x-" plus "default",
// used before exporting to targets that reject unknown keywords.
func StripExtensions(js map[string]any) map[string]any {
	if js == nil {
		return nil
	}
	out := make(map[string]any, len(js))
	for k, v := range js {
		if k == "default" || (len(k) >= 2 && k[:2] == "x-") {
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			out[k] = StripExtensions(sub)
		} else if arr, ok := v.([]any); ok {
			newArr := make([]any, len(arr))
			for i, item := range arr {
				if subMap, ok := item.(map[string]any); ok {
					newArr[i] = StripExtensions(subMap)
				} else {
					newArr[i] = item
				}
			}
			out[k] = newArr
		} else {
			out[k] = v
		}
	}
	return out
}

// ApplyLlmDescriptions replaces "description" with "x-llm-description"
// when present, at the top level of js.
func ApplyLlmDescriptions(js map[string]any) map[string]any {
	if js == nil {
		return nil
	}
	out := deepCopyMap(js)
	if llmDesc, ok := out["x-llm-description"].(string); ok {
		out["description"] = llmDesc
	}
	return out
}
