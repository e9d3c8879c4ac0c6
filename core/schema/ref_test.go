package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/apcore/core/schema"
)

func writeYAML(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRefResolver_LocalPointer(t *testing.T) {
	r := schema.NewRefResolver(t.TempDir())

	doc := map[string]any{
		"definitions": map[string]any{
			"id": map[string]any{"type": "string"},
		},
		"properties": map[string]any{
			"user_id": map[string]any{"$ref": "#/definitions/id"},
		},
	}

	resolved, err := r.Resolve(doc, r.SchemasRoot)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	props := resolved["properties"].(map[string]any)
	userID := props["user_id"].(map[string]any)
	if userID["type"] != "string" {
		t.Fatalf("unresolved $ref: %+v", userID)
	}
	if _, hasRef := userID["$ref"]; hasRef {
		t.Fatalf("$ref key leaked into resolved output")
	}
}

func TestRefResolver_RelativeFile(t *testing.T) {
	root := t.TempDir()
	writeYAML(t, filepath.Join(root, "common.yaml"), "type: string\nminLength: 1\n")

	r := schema.NewRefResolver(root)
	doc := map[string]any{
		"properties": map[string]any{
			"name": map[string]any{"$ref": "common.yaml"},
		},
	}

	resolved, err := r.Resolve(doc, root)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	name := resolved["properties"].(map[string]any)["name"].(map[string]any)
	if name["type"] != "string" {
		t.Fatalf("expected resolved relative ref, got %+v", name)
	}
}

func TestRefResolver_PathTraversalRejected(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "outside.yaml")
	writeYAML(t, outside, "type: string\n")
	defer os.Remove(outside)

	r := schema.NewRefResolver(root)
	doc := map[string]any{"$ref": "../outside.yaml"}

	if _, err := r.Resolve(doc, root); err == nil {
		t.Fatalf("expected path-traversal ref to be rejected")
	}
}

func TestRefResolver_CycleDetected(t *testing.T) {
	r := schema.NewRefResolver(t.TempDir())
	doc := map[string]any{
		"definitions": map[string]any{
			"a": map[string]any{"$ref": "#/definitions/b"},
			"b": map[string]any{"$ref": "#/definitions/a"},
		},
		"$ref": "#/definitions/a",
	}

	if _, err := r.Resolve(doc, r.SchemasRoot); err == nil {
		t.Fatalf("expected cycle detection to fail")
	}
}

func TestRefResolver_SiblingKeysOverlaid(t *testing.T) {
	r := schema.NewRefResolver(t.TempDir())
	doc := map[string]any{
		"definitions": map[string]any{
			"id": map[string]any{"type": "string"},
		},
		"field": map[string]any{
			"$ref":        "#/definitions/id",
			"description": "the user id",
		},
	}

	resolved, err := r.Resolve(doc, r.SchemasRoot)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	field := resolved["field"].(map[string]any)
	if field["type"] != "string" || field["description"] != "the user id" {
		t.Fatalf("sibling keys not overlaid: %+v", field)
	}
}
