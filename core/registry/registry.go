// Package registry owns the set of live modules: registration, lookup,
// listing, lifecycle events, filesystem discovery with dependency
// ordering, and an optional hot-reload watch.
package registry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/core/module"
	"github.com/rs/zerolog"
)

var idPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)*$`)

// Event names fired via On.
const (
	EventRegister   = "register"
	EventUnregister = "unregister"
)

// EventCallback observes register/unregister events. Per §4.1, a callback
// that panics is logged and swallowed — it never interrupts the caller of
// Register/Unregister.
type EventCallback func(moduleID string, mod *module.Module)

// Meta is the YAML-sourced metadata merged with a module's code-level
// fields by GetDefinition. Nil fields mean "not specified in metadata".
type Meta struct {
	Description   string         `yaml:"description,omitempty"`
	Name          string         `yaml:"name,omitempty"`
	Tags          []string       `yaml:"tags,omitempty"`
	Version       string         `yaml:"version,omitempty"`
	Documentation string         `yaml:"documentation,omitempty"`
	Annotations   map[string]any `yaml:"annotations,omitempty"`
	Examples      []module.Example `yaml:"examples,omitempty"`
	Metadata      map[string]any `yaml:"metadata,omitempty"`
	Dependencies  []DependencyInfo `yaml:"dependencies,omitempty"`
}

// DependencyInfo names a module dependency used by the dependency
// resolver (§4.3).
type DependencyInfo struct {
	ModuleID string `yaml:"module_id"`
	Version  string `yaml:"version,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
}

// Descriptor is the merged view of a module plus its YAML companion,
// returned by GetDefinition. YAML wins for description/name/tags/
// version/annotations/examples/documentation; metadata is shallow-merged
// with YAML values last.
type Descriptor struct {
	ModuleID      string
	Description   string
	Tags          []string
	Version       string
	Documentation string
	Annotations   module.Annotations
	Examples      []module.Example
	Metadata      map[string]any
}

// Registry owns the live module set.
type Registry struct {
	mu sync.RWMutex

	modules  map[string]*module.Module
	metadata map[string]Meta

	registerCallbacks   []EventCallback
	unregisterCallbacks []EventCallback

	logger zerolog.Logger

	discoverer Discoverer
	validator  func(*module.Module) error

	watcher *watch

	// pathByID/idByPath track which manifest file produced which module,
	// populated by Discover, consumed by the hot-reload watch to map a
	// fsnotify path back to a module id on delete/rename.
	pathByID map[string]string
	idByPath map[string]string
}

// New creates an empty registry. logger is used for the "callback throws
// are logged and swallowed" isolation policy throughout this package.
func New(logger zerolog.Logger) *Registry {
	fsDiscoverer := NewFilesystemDiscoverer()
	fsDiscoverer.Logger = logger
	return &Registry{
		modules:    make(map[string]*module.Module),
		metadata:   make(map[string]Meta),
		logger:     logger,
		discoverer: fsDiscoverer,
		validator:  defaultValidator,
		pathByID:   make(map[string]string),
		idByPath:   make(map[string]string),
	}
}

func defaultValidator(mod *module.Module) error {
	return mod.Validate()
}

// SetDiscoverer overrides the default filesystem discoverer.
func (r *Registry) SetDiscoverer(d Discoverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoverer = d
}

// SetValidator overrides the default duck-type validator.
func (r *Registry) SetValidator(v func(*module.Module) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validator = v
}

// Register adds mod under moduleID. Fails with InvalidInput if the id is
// empty, malformed, or already present. Calls mod.OnLoad if present,
// rolling back registration if it errors. Fires register callbacks
// (callback errors/panics are logged and swallowed).
func (r *Registry) Register(moduleID string, mod *module.Module) error {
	r.mu.Lock()

	if moduleID == "" {
		r.mu.Unlock()
		return apcerrors.InvalidInput("module id is empty")
	}
	if !idPattern.MatchString(moduleID) {
		r.mu.Unlock()
		return apcerrors.InvalidInput(fmt.Sprintf("module id %q is malformed", moduleID))
	}
	if _, exists := r.modules[moduleID]; exists {
		r.mu.Unlock()
		return apcerrors.InvalidInput(fmt.Sprintf("module %q already registered", moduleID))
	}

	if err := r.validator(mod); err != nil {
		r.mu.Unlock()
		return err
	}

	r.modules[moduleID] = mod
	r.mu.Unlock()

	if mod.OnLoad != nil {
		if err := safeCall(mod.OnLoad); err != nil {
			r.mu.Lock()
			delete(r.modules, moduleID)
			r.mu.Unlock()
			return apcerrors.ModuleLoadError(fmt.Sprintf("onLoad failed for %q", moduleID), err)
		}
	}

	r.fireEvent(r.registerCallbacks, moduleID, mod)
	return nil
}

// Unregister removes moduleID, calling mod.OnUnload (errors logged, not
// propagated) and firing unregister callbacks. Returns whether it was
// present.
func (r *Registry) Unregister(moduleID string) bool {
	r.mu.Lock()
	mod, exists := r.modules[moduleID]
	if !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.modules, moduleID)
	delete(r.metadata, moduleID)
	if path, ok := r.pathByID[moduleID]; ok {
		delete(r.idByPath, path)
		delete(r.pathByID, moduleID)
	}
	r.mu.Unlock()

	if mod.OnUnload != nil {
		if err := safeCall(mod.OnUnload); err != nil {
			r.logger.Error().Err(err).Str("module_id", moduleID).Msg("onUnload failed")
		}
	}

	r.fireEvent(r.unregisterCallbacks, moduleID, mod)
	return true
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}

func (r *Registry) fireEvent(callbacks []EventCallback, moduleID string, mod *module.Module) {
	for _, cb := range callbacks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error().Interface("panic", rec).Str("module_id", moduleID).Msg("event callback panicked")
				}
			}()
			cb(moduleID, mod)
		}()
	}
}

// On registers a callback for "register" or "unregister" events.
func (r *Registry) On(event string, cb EventCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch event {
	case EventRegister:
		r.registerCallbacks = append(r.registerCallbacks, cb)
	case EventUnregister:
		r.unregisterCallbacks = append(r.unregisterCallbacks, cb)
	}
}

// Get returns the module registered under moduleID, or nil. An empty id
// fails with ModuleNotFound rather than returning nil silently, matching
// §4.1.
func (r *Registry) Get(moduleID string) (*module.Module, error) {
	if moduleID == "" {
		return nil, apcerrors.ModuleNotFound(moduleID)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[moduleID]
	if !ok {
		return nil, nil
	}
	return mod, nil
}

// Has reports whether moduleID is registered.
func (r *Registry) Has(moduleID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[moduleID]
	return ok
}

// Count returns the number of registered modules.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// ModuleIDs returns all registered module ids, sorted.
func (r *Registry) ModuleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListFilter narrows List's result set.
type ListFilter struct {
	Prefix string
	Tags   []string
}

// List returns modules matching filter, sorted by id. Tag filtering is a
// conjunction over code-level tags unioned with YAML metadata tags.
func (r *Registry) List(filter ListFilter) []*module.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*module.Module
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		mod := r.modules[id]
		if filter.Prefix != "" && !strings.HasPrefix(id, filter.Prefix) {
			continue
		}
		if len(filter.Tags) > 0 {
			allTags := unionTags(mod.Tags, r.metadata[id].Tags)
			if !containsAll(allTags, filter.Tags) {
				continue
			}
		}
		out = append(out, mod)
	}
	return out
}

func unionTags(a, b []string) map[string]bool {
	set := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		set[t] = true
	}
	return set
}

func containsAll(set map[string]bool, want []string) bool {
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

// Iter calls fn for every (id, module) pair in sorted id order. Stops
// early if fn returns false.
func (r *Registry) Iter(fn func(id string, mod *module.Module) bool) {
	for _, id := range r.ModuleIDs() {
		mod, _ := r.Get(id)
		if mod == nil {
			continue
		}
		if !fn(id, mod) {
			return
		}
	}
}

// MergeMetadata records YAML-sourced metadata for moduleID, consumed by
// GetDefinition and List's tag filter.
func (r *Registry) MergeMetadata(moduleID string, meta Meta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[moduleID] = meta
}

// GetDefinition returns the merged descriptor for moduleID: YAML metadata
// wins over code-level fields for description/name/tags/version/
// annotations/examples/documentation; free-form metadata is shallow
// merged with YAML values last.
func (r *Registry) GetDefinition(moduleID string) (*Descriptor, error) {
	r.mu.RLock()
	mod, ok := r.modules[moduleID]
	meta := r.metadata[moduleID]
	r.mu.RUnlock()
	if !ok {
		return nil, apcerrors.ModuleNotFound(moduleID)
	}

	desc := &Descriptor{
		ModuleID:      moduleID,
		Description:   mod.Description,
		Tags:          mod.Tags,
		Version:       mod.Version,
		Documentation: mod.Documentation,
		Annotations:   mod.Annotations,
		Examples:      mod.Examples,
		Metadata:      make(map[string]any, len(mod.Metadata)),
	}
	for k, v := range mod.Metadata {
		desc.Metadata[k] = v
	}

	if meta.Description != "" {
		desc.Description = meta.Description
	}
	if meta.Version != "" {
		desc.Version = meta.Version
	}
	if meta.Documentation != "" {
		desc.Documentation = meta.Documentation
	}
	if len(meta.Tags) > 0 {
		desc.Tags = meta.Tags
	}
	if len(meta.Examples) > 0 {
		desc.Examples = meta.Examples
	}
	if meta.Annotations != nil {
		applyAnnotationOverrides(&desc.Annotations, meta.Annotations)
	}
	for k, v := range meta.Metadata {
		desc.Metadata[k] = v
	}

	return desc, nil
}

// applyAnnotationOverrides accepts both camelCase and snake_case keys, per
// §3's "accepted in both camelCase and snake_case when read from YAML".
func applyAnnotationOverrides(ann *module.Annotations, raw map[string]any) {
	get := func(camel, snake string) (bool, bool) {
		if v, ok := raw[camel]; ok {
			b, _ := v.(bool)
			return b, true
		}
		if v, ok := raw[snake]; ok {
			b, _ := v.(bool)
			return b, true
		}
		return false, false
	}
	if v, ok := get("readonly", "readonly"); ok {
		ann.ReadOnly = v
	}
	if v, ok := get("destructive", "destructive"); ok {
		ann.Destructive = v
	}
	if v, ok := get("idempotent", "idempotent"); ok {
		ann.Idempotent = v
	}
	if v, ok := get("requiresApproval", "requires_approval"); ok {
		ann.RequiresApproval = v
	}
	if v, ok := get("openWorld", "open_world"); ok {
		ann.OpenWorld = v
	}
	if v, ok := get("streaming", "streaming"); ok {
		ann.Streaming = v
	}
}

// Describe returns a module's custom describer output if the module body
// exposes one via Metadata["describe"], else an auto-generated markdown
// summary.
func (r *Registry) Describe(moduleID string) (string, error) {
	mod, err := r.Get(moduleID)
	if err != nil {
		return "", err
	}
	if mod == nil {
		return "", apcerrors.ModuleNotFound(moduleID)
	}
	if custom, ok := mod.Metadata["describe"].(func() string); ok {
		return custom(), nil
	}
	return mod.Describe(), nil
}
