package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/apcore/core/loader"
	"github.com/artpar/apcore/core/module"
	"github.com/artpar/apcore/core/registry"
	"github.com/rs/zerolog"
)

func TestRegistry_Discover_RegistersInDependencyOrder(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "math", "add.module.yaml"), "test/add", "")
	addPath := filepath.Join(root, "app", "main.module.yaml")
	writeDependentManifest(t, addPath, "test/main", []string{"math.add"})

	l := loader.NewRegistry()
	l.Register("test/add", "", func() (*module.Module, error) { return echoModule("placeholder"), nil })
	l.Register("test/main", "", func() (*module.Module, error) { return echoModule("placeholder"), nil })

	r := registry.New(zerolog.Nop())
	r.SetDiscoverer(&registry.FilesystemDiscoverer{MaxDepth: 8, Loader: l})

	n, err := r.Discover([]string{root})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 modules registered, got %d", n)
	}
	if !r.Has("math.add") || !r.Has("app.main") {
		t.Fatalf("expected both modules registered, have ids: %v", r.ModuleIDs())
	}
}

func writeDependentManifest(t *testing.T, path, entryPoint string, deps []string) {
	t.Helper()
	body := "entry_point: " + entryPoint + "\ndescription: depends on things\ndependencies:\n"
	for _, d := range deps {
		body += "  - module_id: " + d + "\n"
	}
	writeRaw(t, path, body)
}

func writeRaw(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
