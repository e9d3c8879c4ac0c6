package registry_test

import (
	"testing"

	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/core/registry"
)

func discovered(id string, deps ...registry.DependencyInfo) registry.DiscoveredModule {
	return registry.DiscoveredModule{ModuleID: id, Module: echoModule(id), Dependencies: deps}
}

func TestOrderDiscovered_DependenciesFirst(t *testing.T) {
	mods := []registry.DiscoveredModule{
		discovered("app.main", registry.DependencyInfo{ModuleID: "math.add"}),
		discovered("math.add"),
	}
	ordered, err := registry.OrderDiscovered(mods)
	if err != nil {
		t.Fatalf("OrderDiscovered() error = %v", err)
	}
	if ordered[0].ModuleID != "math.add" || ordered[1].ModuleID != "app.main" {
		t.Fatalf("unexpected order: %v, %v", ordered[0].ModuleID, ordered[1].ModuleID)
	}
}

func TestOrderDiscovered_UnknownRequiredFails(t *testing.T) {
	mods := []registry.DiscoveredModule{
		discovered("app.main", registry.DependencyInfo{ModuleID: "missing.module"}),
	}
	_, err := registry.OrderDiscovered(mods)
	if !apcerrors.Is(err, apcerrors.KindModuleLoadError) {
		t.Fatalf("expected ModuleLoadError, got %v", err)
	}
}

func TestOrderDiscovered_UnknownOptionalSkipped(t *testing.T) {
	mods := []registry.DiscoveredModule{
		discovered("app.main", registry.DependencyInfo{ModuleID: "missing.module", Optional: true}),
	}
	ordered, err := registry.OrderDiscovered(mods)
	if err != nil {
		t.Fatalf("OrderDiscovered() error = %v", err)
	}
	if len(ordered) != 1 {
		t.Fatalf("expected module to still be ordered, got %d", len(ordered))
	}
}

func TestOrderDiscovered_CycleDetected(t *testing.T) {
	mods := []registry.DiscoveredModule{
		discovered("a", registry.DependencyInfo{ModuleID: "b"}),
		discovered("b", registry.DependencyInfo{ModuleID: "a"}),
	}
	_, err := registry.OrderDiscovered(mods)
	if !apcerrors.Is(err, apcerrors.KindCircularDependency) {
		t.Fatalf("expected CircularDependency, got %v", err)
	}
}

func TestOrderDiscovered_DeterministicTieBreak(t *testing.T) {
	mods := []registry.DiscoveredModule{
		discovered("z.mod"),
		discovered("a.mod"),
		discovered("m.mod"),
	}
	ordered, err := registry.OrderDiscovered(mods)
	if err != nil {
		t.Fatalf("OrderDiscovered() error = %v", err)
	}
	want := []string{"a.mod", "m.mod", "z.mod"}
	for i, id := range want {
		if ordered[i].ModuleID != id {
			t.Fatalf("ordered = %v, want deterministic %v", ordered, want)
		}
	}
}
