// Package loader is the static-compilation replacement for the source
// system's dynamic import() (see spec design note "Dynamic import() of
// user files"). Go cannot load arbitrary source files at runtime, so
// discovery is re-architected as a build-time registry: extension
// packages register a named Factory from their own init(), and the
// scanner's YAML manifests name the registered symbol instead of a file
// to import.
package loader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/core/module"
)

// Factory builds a fresh Module instance. Factories are cheap and
// stateless by convention — registry.Discover calls one per discovered
// manifest.
type Factory func() (*module.Module, error)

// Registry is a two-level symbol table: manifest path -> export name ->
// Factory. "default" is the reserved export name used when a manifest
// does not name an explicit entry-point class, mirroring the source
// system's "default export" convention.
type Registry struct {
	mu      sync.RWMutex
	exports map[string]map[string]Factory
}

// NewRegistry builds an empty loader registry.
func NewRegistry() *Registry {
	return &Registry{exports: make(map[string]map[string]Factory)}
}

// Register adds factory as the named export of path. Call from an init()
// function in the package implementing that module.
func (r *Registry) Register(path, export string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if export == "" {
		export = "default"
	}
	if r.exports[path] == nil {
		r.exports[path] = make(map[string]Factory)
	}
	r.exports[path][export] = factory
}

// Exports returns the sorted list of export names registered under path.
func (r *Registry) Exports(path string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.exports[path]))
	for name := range r.exports[path] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveEntryPoint implements §4.4's entry point resolution against the
// compile-time registry: an explicit class name selects that export by
// name; otherwise the "default" export is preferred, falling back to the
// single remaining export if unambiguous.
func (r *Registry) ResolveEntryPoint(path, explicitClass string) (*module.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exports, ok := r.exports[path]
	if !ok || len(exports) == 0 {
		return nil, apcerrors.ModuleLoadError(fmt.Sprintf("no module found at %q", path), nil)
	}

	if explicitClass != "" {
		factory, ok := exports[explicitClass]
		if !ok {
			return nil, apcerrors.ModuleLoadError(fmt.Sprintf("entry point class %q not found at %q", explicitClass, path), nil)
		}
		return callFactory(factory)
	}

	if factory, ok := exports["default"]; ok {
		return callFactory(factory)
	}

	if len(exports) == 1 {
		for _, factory := range exports {
			return callFactory(factory)
		}
	}

	if len(exports) == 0 {
		return nil, apcerrors.ModuleLoadError("No module found", nil)
	}
	return nil, apcerrors.ModuleLoadError("Ambiguous entry point", nil)
}

func callFactory(f Factory) (*module.Module, error) {
	mod, err := f()
	if err != nil {
		return nil, apcerrors.ModuleLoadError("module constructor failed", err)
	}
	return mod, nil
}

// global is the process-wide registry used by extension packages that
// register via the package-level Register function, analogous to
// database/sql driver registration.
var global = NewRegistry()

// Global returns the process-wide registry.
func Global() *Registry { return global }

// Register adds factory to the process-wide registry.
func Register(path, export string, factory Factory) {
	global.Register(path, export, factory)
}
