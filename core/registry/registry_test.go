package registry_test

import (
	"testing"

	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/core/module"
	"github.com/artpar/apcore/core/registry"
	"github.com/artpar/apcore/execctx"
	"github.com/rs/zerolog"
)

func echoModule(id string) *module.Module {
	return module.New(id, "echoes its inputs", func(inputs map[string]any, ctx *execctx.Context) (map[string]any, error) {
		return inputs, nil
	})
}

func newTestRegistry() *registry.Registry {
	return registry.New(zerolog.Nop())
}

func TestRegister_DuplicateRejected(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("math.add", echoModule("math.add")); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	err := r.Register("math.add", echoModule("math.add"))
	if !apcerrors.Is(err, apcerrors.KindInvalidInput) {
		t.Fatalf("expected InvalidInput for duplicate register, got %v", err)
	}
}

func TestRegister_MalformedID(t *testing.T) {
	r := newTestRegistry()
	err := r.Register("Math.Add!", echoModule("Math.Add!"))
	if !apcerrors.Is(err, apcerrors.KindInvalidInput) {
		t.Fatalf("expected InvalidInput for malformed id, got %v", err)
	}
}

func TestGet_Unregistered(t *testing.T) {
	r := newTestRegistry()
	mod, err := r.Get("missing.module")
	if err != nil {
		t.Fatalf("Get() unexpected error = %v", err)
	}
	if mod != nil {
		t.Fatalf("expected nil module, got %+v", mod)
	}
}

func TestGet_EmptyID(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Get("")
	if !apcerrors.Is(err, apcerrors.KindModuleNotFound) {
		t.Fatalf("expected ModuleNotFound for empty id, got %v", err)
	}
}

func TestUnregister_FiresOnUnload(t *testing.T) {
	r := newTestRegistry()
	called := false
	mod := echoModule("math.sub")
	mod.OnUnload = func() error { called = true; return nil }
	if err := r.Register("math.sub", mod); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !r.Unregister("math.sub") {
		t.Fatalf("Unregister() returned false for registered module")
	}
	if !called {
		t.Fatalf("expected OnUnload to be called")
	}
	if r.Has("math.sub") {
		t.Fatalf("module still present after Unregister")
	}
}

func TestUnregister_NotPresent(t *testing.T) {
	r := newTestRegistry()
	if r.Unregister("never.registered") {
		t.Fatalf("expected false for unregistered module")
	}
}

func TestOnLoad_FailureRollsBackRegistration(t *testing.T) {
	r := newTestRegistry()
	mod := echoModule("math.div")
	mod.OnLoad = func() error { return apcerrors.New(apcerrors.KindModuleLoadError, "boom") }

	err := r.Register("math.div", mod)
	if !apcerrors.Is(err, apcerrors.KindModuleLoadError) {
		t.Fatalf("expected ModuleLoadError, got %v", err)
	}
	if r.Has("math.div") {
		t.Fatalf("module should not remain registered after OnLoad failure")
	}
}

func TestList_FilterByPrefixAndTags(t *testing.T) {
	r := newTestRegistry()
	a := echoModule("math.add")
	a.Tags = []string{"arithmetic"}
	b := echoModule("math.mul")
	b.Tags = []string{"arithmetic", "advanced"}
	c := echoModule("text.concat")
	c.Tags = []string{"string"}

	for id, mod := range map[string]*module.Module{"math.add": a, "math.mul": b, "text.concat": c} {
		if err := r.Register(id, mod); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}

	mathMods := r.List(registry.ListFilter{Prefix: "math."})
	if len(mathMods) != 2 {
		t.Fatalf("expected 2 math modules, got %d", len(mathMods))
	}

	advanced := r.List(registry.ListFilter{Tags: []string{"advanced"}})
	if len(advanced) != 1 || advanced[0].ModuleID != "math.mul" {
		t.Fatalf("unexpected advanced filter result: %+v", advanced)
	}
}

func TestModuleIDs_Sorted(t *testing.T) {
	r := newTestRegistry()
	for _, id := range []string{"z.last", "a.first", "m.mid"} {
		if err := r.Register(id, echoModule(id)); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}
	ids := r.ModuleIDs()
	want := []string{"a.first", "m.mid", "z.last"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("ModuleIDs() = %v, want %v", ids, want)
		}
	}
}

func TestOn_RegisterAndUnregisterEvents(t *testing.T) {
	r := newTestRegistry()
	var registered, unregistered []string
	r.On(registry.EventRegister, func(id string, mod *module.Module) { registered = append(registered, id) })
	r.On(registry.EventUnregister, func(id string, mod *module.Module) { unregistered = append(unregistered, id) })

	if err := r.Register("math.add", echoModule("math.add")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	r.Unregister("math.add")

	if len(registered) != 1 || registered[0] != "math.add" {
		t.Fatalf("unexpected registered events: %v", registered)
	}
	if len(unregistered) != 1 || unregistered[0] != "math.add" {
		t.Fatalf("unexpected unregistered events: %v", unregistered)
	}
}

func TestEventCallback_PanicIsIsolated(t *testing.T) {
	r := newTestRegistry()
	r.On(registry.EventRegister, func(id string, mod *module.Module) { panic("boom") })

	if err := r.Register("math.add", echoModule("math.add")); err != nil {
		t.Fatalf("Register() should not fail from a panicking callback, got %v", err)
	}
	if !r.Has("math.add") {
		t.Fatalf("module should still be registered despite callback panic")
	}
}

func TestGetDefinition_MetadataOverridesCode(t *testing.T) {
	r := newTestRegistry()
	mod := echoModule("math.add")
	mod.Description = "code description"
	mod.Tags = []string{"code-tag"}
	if err := r.Register("math.add", mod); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	r.MergeMetadata("math.add", registry.Meta{
		Description: "yaml description",
		Tags:        []string{"yaml-tag"},
		Metadata:    map[string]any{"owner": "team-a"},
	})

	def, err := r.GetDefinition("math.add")
	if err != nil {
		t.Fatalf("GetDefinition() error = %v", err)
	}
	if def.Description != "yaml description" {
		t.Fatalf("expected YAML description to win, got %q", def.Description)
	}
	if len(def.Tags) != 1 || def.Tags[0] != "yaml-tag" {
		t.Fatalf("expected YAML tags to win, got %v", def.Tags)
	}
	if def.Metadata["owner"] != "team-a" {
		t.Fatalf("expected merged metadata, got %+v", def.Metadata)
	}
}

func TestGetDefinition_Unregistered(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.GetDefinition("missing.module"); !apcerrors.Is(err, apcerrors.KindModuleNotFound) {
		t.Fatalf("expected ModuleNotFound, got %v", err)
	}
}

func TestDescribe_FallsBackToAutoSummary(t *testing.T) {
	r := newTestRegistry()
	mod := echoModule("math.add")
	mod.Documentation = "adds two integers together"
	if err := r.Register("math.add", mod); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	out, err := r.Describe("math.add")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty describe output")
	}
}
