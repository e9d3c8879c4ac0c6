// Package module defines the Module abstraction: an executable wrapped
// with input/output schema and metadata, as registered in the registry.
package module

import (
	"sort"

	"github.com/artpar/apcore/core/schema"
	"github.com/artpar/apcore/execctx"
)

// Annotations describe a module's side-effect profile. Defaults match the
// spec: only OpenWorld defaults true.
type Annotations struct {
	ReadOnly         bool `yaml:"readonly" json:"readonly"`
	Destructive      bool `yaml:"destructive" json:"destructive"`
	Idempotent       bool `yaml:"idempotent" json:"idempotent"`
	RequiresApproval bool `yaml:"requires_approval" json:"requiresApproval"`
	OpenWorld        bool `yaml:"open_world" json:"openWorld"`
	Streaming        bool `yaml:"streaming" json:"streaming"`
}

// DefaultAnnotations returns the spec's default annotation set.
func DefaultAnnotations() Annotations {
	return Annotations{OpenWorld: true}
}

// Example is one documented call example for a module.
type Example struct {
	Title       string         `yaml:"title" json:"title"`
	Inputs      map[string]any `yaml:"inputs" json:"inputs"`
	Output      map[string]any `yaml:"output" json:"output"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
}

// ExecuteFunc is the signature every module body implements.
type ExecuteFunc func(inputs map[string]any, ctx *execctx.Context) (map[string]any, error)

// Module is the unit registered in the registry: an executable wrapped
// with its schema and metadata (§3).
type Module struct {
	ModuleID      string
	InputSchema   *schema.RuntimeSchema
	OutputSchema  *schema.RuntimeSchema
	Description   string
	Documentation string
	Tags          []string
	Version       string
	Annotations   Annotations
	Examples      []Example
	Metadata      map[string]any

	Execute ExecuteFunc

	// OnLoad/OnUnload are optional lifecycle hooks invoked by the
	// registry on register/unregister.
	OnLoad   func() error
	OnUnload func() error
}

// New builds a Module with spec defaults (version 1.0.0, OpenWorld
// annotation true) applied when left zero-valued.
func New(moduleID, description string, exec ExecuteFunc) *Module {
	return &Module{
		ModuleID:    moduleID,
		Description: description,
		Version:     "1.0.0",
		Annotations: DefaultAnnotations(),
		Execute:     exec,
	}
}

// Validate checks the structural invariants every registered module must
// satisfy: a well-formed id, non-empty description, executable body. It
// then fills defaults: empty object schemas for nil input/output schemas,
// version "1.0.0", and de-duplicated tags.
func (m *Module) Validate() error {
	if m.ModuleID == "" {
		return errInvalid("module id is empty")
	}
	if !idPattern.MatchString(m.ModuleID) {
		return errInvalid("module id %q does not match [a-z_][a-z0-9_]*(\\.[a-z_][a-z0-9_]*)*", m.ModuleID)
	}
	if m.Description == "" {
		return errInvalid("module description is empty")
	}
	if m.Execute == nil {
		return errInvalid("module has no execute function")
	}
	if m.InputSchema == nil {
		m.InputSchema = &schema.RuntimeSchema{Kind: schema.KindObject, Properties: map[string]*schema.RuntimeSchema{}, Required: map[string]bool{}}
	}
	if m.OutputSchema == nil {
		m.OutputSchema = &schema.RuntimeSchema{Kind: schema.KindObject, Properties: map[string]*schema.RuntimeSchema{}, Required: map[string]bool{}}
	}
	if m.Version == "" {
		m.Version = "1.0.0"
	}
	m.Tags = dedupSorted(m.Tags)
	return nil
}

func dedupSorted(tags []string) []string {
	if len(tags) == 0 {
		return tags
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Describe returns a markdown summary of the module, used by
// Registry.Describe when the module has no custom describer.
func (m *Module) Describe() string {
	s := "# " + m.ModuleID + "\n\n" + m.Description + "\n"
	if m.Documentation != "" {
		s += "\n" + m.Documentation + "\n"
	}
	if len(m.Tags) > 0 {
		s += "\nTags: "
		for i, t := range m.Tags {
			if i > 0 {
				s += ", "
			}
			s += t
		}
		s += "\n"
	}
	return s
}
