// Package http provides the runtime's admin HTTP surface: health,
// Prometheus metrics, per-module schema export, and registry listing.
package http

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/artpar/apcore/core/module"
	"github.com/artpar/apcore/core/registry"
	"github.com/artpar/apcore/core/schema"
	"github.com/artpar/apcore/executor"
	"github.com/artpar/apcore/observability/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Deps are the admin router's dependencies.
type Deps struct {
	Registry *registry.Registry
	Executor *executor.Executor
	Metrics  *metrics.Collector
	Logger   zerolog.Logger
}

// NewRouter builds the admin surface: GET /healthz, GET /metrics,
// GET /modules, GET /schema/{moduleId}, GET /.well-known/openapi.json, and
// a browsable GET /swagger/* UI over that document — the same
// httpSwagger.Handler(httpSwagger.URL(...)) wiring the teacher uses in
// adapters/http/handler.go, pointed at apcore's own aggregated OpenAPI
// document instead of a codegen'd one.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", handleHealthz(deps))
	if deps.Metrics != nil {
		r.Handle("/metrics", metrics.NewPrometheusHandler(deps.Metrics).Handler())
	}
	r.Get("/modules", handleModules(deps))
	r.Get("/schema/{moduleId}", handleSchema(deps))
	r.Get("/.well-known/openapi.json", handleOpenAPIDocument(deps))
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/.well-known/openapi.json"),
	))

	return r
}

func handleHealthz(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"modules": deps.Registry.Count(),
		})
	}
}

type moduleSummary struct {
	ModuleID    string   `json:"moduleId"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags,omitempty"`
}

func handleModules(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tags []string
		if t := r.URL.Query().Get("tag"); t != "" {
			tags = []string{t}
		}
		mods := deps.Registry.List(registry.ListFilter{Tags: tags})

		out := make([]moduleSummary, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleSummary{
				ModuleID:    m.ModuleID,
				Description: m.Description,
				Version:     m.Version,
				Tags:        m.Tags,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"modules": out})
	}
}

// handleOpenAPIDocument aggregates every registered module's "openapi"
// export profile fragment into one OpenAPI 3 document keyed by
// /call/{moduleId}, mirroring the teacher's openapi.Service which merges
// one fragment per discovered route into a single spec document.
//
// @Summary      Aggregated OpenAPI document
// @Description  Builds an OpenAPI 3 document with one POST /call/{moduleId} operation per registered module.
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /.well-known/openapi.json [get]
func handleOpenAPIDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := deps.Registry.ModuleIDs()
		sort.Strings(ids)

		paths := make(map[string]any, len(ids))
		for _, id := range ids {
			mod, err := deps.Registry.Get(id)
			if err != nil || mod == nil {
				continue
			}
			fragment, err := schema.Export(exportInputFor(mod), schema.ProfileOpenAPI)
			if err != nil {
				continue
			}
			paths["/call/"+id] = map[string]any{"post": fragment}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"openapi": "3.0.3",
			"info": map[string]any{
				"title":   "apcore module registry",
				"version": "1.0.0",
			},
			"paths": paths,
		})
	}
}

// @Summary      Export one module's schema
// @Description  Exports a registered module's schema in the requested profile (mcp, openai, anthropic, generic, openapi).
// @Produce      json
// @Param        moduleId  path      string  true  "module id"
// @Param        profile   query     string  false "export profile"
// @Success      200       {object}  map[string]any
// @Failure      404       {object}  map[string]any
// @Router       /schema/{moduleId} [get]
func handleSchema(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		moduleID := chi.URLParam(r, "moduleId")
		mod, err := deps.Registry.Get(moduleID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
			return
		}

		profile := schema.Profile(r.URL.Query().Get("profile"))
		if profile == "" {
			profile = schema.ProfileGeneric
		}

		exported, err := schema.Export(exportInputFor(mod), profile)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, exported)
	}
}

func exportInputFor(mod *module.Module) schema.ExportInput {
	return schema.ExportInput{
		ModuleID:      mod.ModuleID,
		Description:   mod.Description,
		Documentation: mod.Documentation,
		InputSchema:   rawOf(mod.InputSchema),
		OutputSchema:  rawOf(mod.OutputSchema),
		Annotations: schema.ExportAnnotations{
			ReadOnly:         mod.Annotations.ReadOnly,
			Destructive:      mod.Annotations.Destructive,
			Idempotent:       mod.Annotations.Idempotent,
			RequiresApproval: mod.Annotations.RequiresApproval,
			OpenWorld:        mod.Annotations.OpenWorld,
			Streaming:        mod.Annotations.Streaming,
		},
		Examples: exportExamples(mod.Examples),
	}
}

func rawOf(s *schema.RuntimeSchema) map[string]any {
	if s == nil || s.Raw == nil {
		return schema.EmptyObjectJSONSchema()
	}
	return s.Raw
}

func exportExamples(examples []module.Example) []schema.ExportExample {
	out := make([]schema.ExportExample, 0, len(examples))
	for _, e := range examples {
		out = append(out, schema.ExportExample{
			Title:       e.Title,
			Inputs:      e.Inputs,
			Output:      e.Output,
			Description: e.Description,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
