package schema_test

import (
	"testing"

	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/core/schema"
)

func TestValidator_ObjectCoercing(t *testing.T) {
	js := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []any{"a", "b"},
	}
	rs := schema.Convert(js)
	v := schema.NewValidator()

	out, err := v.ValidateInput(map[string]any{"a": 2.0, "b": 3.0}, rs)
	if err != nil {
		t.Fatalf("ValidateInput() error = %v", err)
	}
	obj := out.(map[string]any)
	if obj["a"] != 2.0 || obj["b"] != 3.0 {
		t.Fatalf("unexpected coerced output: %+v", obj)
	}
}

func TestValidator_MissingRequired(t *testing.T) {
	js := map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "string"}},
		"required":   []any{"a"},
	}
	rs := schema.Convert(js)
	v := schema.NewValidator()

	_, err := v.ValidateInput(map[string]any{}, rs)
	if !apcerrors.Is(err, apcerrors.KindSchemaValidationErr) {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
}

func TestValidator_StringConstraints(t *testing.T) {
	js := map[string]any{"type": "string", "minLength": 2, "maxLength": 4, "pattern": "^[a-z]+$"}
	rs := schema.Convert(js)
	v := schema.NewValidator()

	if _, err := v.ValidateInput("ab", rs); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if _, err := v.ValidateInput("a", rs); err == nil {
		t.Fatalf("expected minLength failure")
	}
	if _, err := v.ValidateInput("ABCD", rs); err == nil {
		t.Fatalf("expected pattern failure")
	}
}

func TestValidator_NumberBounds(t *testing.T) {
	js := map[string]any{"type": "integer", "minimum": 0, "maximum": 10}
	rs := schema.Convert(js)
	v := schema.NewValidator()

	if _, err := v.ValidateInput(5, rs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := v.ValidateInput(11, rs); err == nil {
		t.Fatalf("expected maximum failure")
	}
}

func TestValidator_Enum(t *testing.T) {
	js := map[string]any{"enum": []any{"a", "b", "c"}}
	rs := schema.Convert(js)
	v := schema.NewValidator()

	if _, err := v.ValidateInput("b", rs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := v.ValidateInput("z", rs); err == nil {
		t.Fatalf("expected enum failure")
	}
}

func TestStrict_Idempotent(t *testing.T) {
	js := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "string"},
			"b": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}

	once := schema.Strict(js)
	twice := schema.Strict(once)

	if !deepEqual(once, twice) {
		t.Fatalf("Strict is not idempotent:\nonce=%+v\ntwice=%+v", once, twice)
	}
	if once["additionalProperties"] != false {
		t.Fatalf("expected additionalProperties=false")
	}
}

func deepEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		switch vv := v.(type) {
		case map[string]any:
			bvv, ok := bv.(map[string]any)
			if !ok || !deepEqual(vv, bvv) {
				return false
			}
		case []any:
			bvv, ok := bv.([]any)
			if !ok || len(vv) != len(bvv) {
				return false
			}
		default:
			if v != bv {
				return false
			}
		}
	}
	return true
}
