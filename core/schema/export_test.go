package schema_test

import (
	"testing"

	"github.com/artpar/apcore/core/schema"
)

func sampleExportInput() schema.ExportInput {
	return schema.ExportInput{
		ModuleID:    "math.add",
		Description: "adds two numbers",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"a": map[string]any{"type": "number"}, "b": map[string]any{"type": "number"}},
			"required":   []any{"a", "b"},
		},
		OutputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"result": map[string]any{"type": "number"}},
		},
		Annotations: schema.ExportAnnotations{OpenWorld: true},
	}
}

func TestExport_MCP(t *testing.T) {
	out, err := schema.Export(sampleExportInput(), schema.ProfileMCP)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if out["name"] != "math.add" {
		t.Fatalf("unexpected name: %+v", out)
	}
	ann := out["annotations"].(map[string]any)
	if ann["openWorldHint"] != true {
		t.Fatalf("expected openWorldHint=true, got %+v", ann)
	}
}

func TestExport_OpenAI_StrictNamesUnderscored(t *testing.T) {
	out, err := schema.Export(sampleExportInput(), schema.ProfileOpenAI)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	fn := out["function"].(map[string]any)
	if fn["name"] != "math_add" {
		t.Fatalf("name = %v, want math_add", fn["name"])
	}
	params := fn["parameters"].(map[string]any)
	if params["additionalProperties"] != false {
		t.Fatalf("strict transform not applied: %+v", params)
	}
}

func TestExport_Generic_Passthrough(t *testing.T) {
	in := sampleExportInput()
	out, err := schema.Export(in, schema.ProfileGeneric)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if out["module_id"] != in.ModuleID {
		t.Fatalf("module_id mismatch: %+v", out)
	}
}

func TestExport_UnknownProfile(t *testing.T) {
	if _, err := schema.Export(sampleExportInput(), schema.Profile("bogus")); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}
