package http_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	adminhttp "github.com/artpar/apcore/adapters/http"
	"github.com/artpar/apcore/core/module"
	"github.com/artpar/apcore/core/registry"
	"github.com/artpar/apcore/execctx"
	"github.com/artpar/apcore/observability/metrics"
	"github.com/rs/zerolog"
)

func echoModule(id string) *module.Module {
	return module.New(id, "echoes its inputs", func(inputs map[string]any, ctx *execctx.Context) (map[string]any, error) {
		return inputs, nil
	})
}

func testDeps(t *testing.T) adminhttp.Deps {
	t.Helper()
	reg := registry.New(zerolog.Nop())
	if err := reg.Register("math.add", echoModule("math.add")); err != nil {
		t.Fatalf("register: %v", err)
	}
	return adminhttp.Deps{
		Registry: reg,
		Metrics:  metrics.NewCollector(nil),
		Logger:   zerolog.Nop(),
	}
}

func TestHealthz_ReportsModuleCount(t *testing.T) {
	r := adminhttp.NewRouter(testDeps(t))

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["modules"].(float64) != 1 {
		t.Errorf("modules = %v, want 1", body["modules"])
	}
}

func TestModules_ListsRegistered(t *testing.T) {
	r := adminhttp.NewRouter(testDeps(t))

	req := httptest.NewRequest("GET", "/modules", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Modules []struct {
			ModuleID string `json:"moduleId"`
		} `json:"modules"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Modules) != 1 || body.Modules[0].ModuleID != "math.add" {
		t.Fatalf("unexpected modules: %+v", body.Modules)
	}
}

func TestSchema_UnknownModuleReturns404(t *testing.T) {
	r := adminhttp.NewRouter(testDeps(t))

	req := httptest.NewRequest("GET", "/schema/nope.module", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSchema_KnownModuleReturnsGenericProfile(t *testing.T) {
	r := adminhttp.NewRouter(testDeps(t))

	req := httptest.NewRequest("GET", "/schema/math.add", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
