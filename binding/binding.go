// Package binding loads YAML binding manifests that wrap a registered
// loader.Factory export as an executable module, the compiled-language
// replacement for the spec's "dynamically import the module-path, then
// instantiate class.method" target resolution.
package binding

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/core/loader"
	"github.com/artpar/apcore/core/module"
	"github.com/artpar/apcore/core/schema"
	"github.com/artpar/apcore/execctx"
	"gopkg.in/yaml.v3"
)

// rawBindingFile is the top-level shape of a *.binding.yaml file.
type rawBindingFile struct {
	Bindings []rawBinding `yaml:"bindings"`
}

type rawBinding struct {
	ModuleID     string         `yaml:"module_id"`
	Target       string         `yaml:"target"`
	InputSchema  map[string]any `yaml:"input_schema,omitempty"`
	OutputSchema map[string]any `yaml:"output_schema,omitempty"`
	SchemaRef    string         `yaml:"schema_ref,omitempty"`
	Description  string         `yaml:"description,omitempty"`
	Tags         []string       `yaml:"tags,omitempty"`
	Version      string         `yaml:"version,omitempty"`
}

// Loader resolves binding targets against a loader.Registry.
type Loader struct {
	Registry *loader.Registry
}

// NewLoader builds a binding loader against the process-wide loader
// registry.
func NewLoader() *Loader {
	return &Loader{Registry: loader.Global()}
}

// LoadFile parses path and returns one Module per binding entry.
func (l *Loader) LoadFile(path string) ([]*module.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apcerrors.New(apcerrors.KindBindingFileInvalid, fmt.Sprintf("reading %s", path)).WithDetail("cause", err.Error())
	}

	var file rawBindingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apcerrors.New(apcerrors.KindBindingFileInvalid, fmt.Sprintf("parsing %s", path)).WithDetail("cause", err.Error())
	}

	mods := make([]*module.Module, 0, len(file.Bindings))
	for _, raw := range file.Bindings {
		mod, err := l.build(raw, filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

// LoadDir loads every file under dir whose name matches pattern
// (default "*.binding.yaml"), in ascending name order, per §4.6.
func (l *Loader) LoadDir(dir, pattern string) ([]*module.Module, error) {
	if pattern == "" {
		pattern = "*.binding.yaml"
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, apcerrors.New(apcerrors.KindBindingFileInvalid, fmt.Sprintf("%s is not a directory", dir))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apcerrors.New(apcerrors.KindBindingFileInvalid, fmt.Sprintf("reading %s", dir)).WithDetail("cause", err.Error())
	}

	suffix := strings.TrimPrefix(pattern, "*")
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []*module.Module
	for _, name := range names {
		mods, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, mods...)
	}
	return out, nil
}

// build resolves one binding entry into a Module.
func (l *Loader) build(raw rawBinding, baseDir string) (*module.Module, error) {
	targetPath, exportName, err := splitTarget(raw.Target)
	if err != nil {
		return nil, err
	}

	callable, err := resolveCallable(l.Registry, targetPath, exportName)
	if err != nil {
		return nil, err
	}

	inputSchema, outputSchema, err := resolveSchemas(raw, baseDir)
	if err != nil {
		return nil, err
	}

	mod := module.New(raw.ModuleID, raw.Description, wrapCallable(callable))
	mod.InputSchema = inputSchema
	mod.OutputSchema = outputSchema
	mod.Tags = raw.Tags
	if raw.Version != "" {
		mod.Version = raw.Version
	}
	return mod, nil
}

// splitTarget parses "module-path:exportName" or
// "module-path:ClassName.methodName".
func splitTarget(target string) (path, export string, err error) {
	idx := strings.IndexByte(target, ':')
	if idx < 0 {
		return "", "", apcerrors.New(apcerrors.KindBindingInvalidTarget, fmt.Sprintf("target %q has no ':'", target))
	}
	return target[:idx], target[idx+1:], nil
}

// callable is a resolved binding target: either a plain registered
// export, or a class.method pair bound to a freshly instantiated
// receiver.
type callable func(inputs map[string]any, ctx *execctx.Context) (map[string]any, error)

func resolveCallable(reg *loader.Registry, path, export string) (callable, error) {
	className, methodName, isMethod := strings.Cut(export, ".")

	if !isMethod {
		mod, err := reg.ResolveEntryPoint(path, export)
		if err != nil {
			return nil, apcerrors.New(apcerrors.KindBindingModuleNotFn, fmt.Sprintf("resolving %s:%s", path, export)).WithDetail("cause", err.Error())
		}
		if mod.Execute == nil {
			return nil, apcerrors.New(apcerrors.KindBindingNotCallable, fmt.Sprintf("%s:%s has no execute body", path, export))
		}
		return callable(mod.Execute), nil
	}

	instance, err := reg.ResolveEntryPoint(path, className)
	if err != nil {
		return nil, apcerrors.New(apcerrors.KindBindingCallableNotFn, fmt.Sprintf("instantiating %s:%s", path, className)).WithDetail("cause", err.Error())
	}
	if instance.Metadata == nil {
		return nil, apcerrors.New(apcerrors.KindBindingCallableNotFn, fmt.Sprintf("%s:%s has no methods registered", path, className))
	}
	method, ok := instance.Metadata[methodName].(module.ExecuteFunc)
	if !ok {
		return nil, apcerrors.New(apcerrors.KindBindingNotCallable, fmt.Sprintf("%s has no method %q", className, methodName))
	}
	return callable(method), nil
}

// wrapCallable normalizes the callable's return: a nil map becomes {} and
// any other map passes through unchanged (a callable always returns
// map[string]any, so no other shape reaches this point).
func wrapCallable(c callable) module.ExecuteFunc {
	return func(inputs map[string]any, ctx *execctx.Context) (map[string]any, error) {
		out, err := c(inputs, ctx)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return map[string]any{}, nil
		}
		return out, nil
	}
}

func resolveSchemas(raw rawBinding, baseDir string) (*schema.RuntimeSchema, *schema.RuntimeSchema, error) {
	if raw.InputSchema != nil || raw.OutputSchema != nil {
		in := raw.InputSchema
		out := raw.OutputSchema
		if in == nil {
			in = schema.EmptyObjectJSONSchema()
		}
		if out == nil {
			out = schema.EmptyObjectJSONSchema()
		}
		return schema.Convert(in), schema.Convert(out), nil
	}

	if raw.SchemaRef != "" {
		refPath := raw.SchemaRef
		if !filepath.IsAbs(refPath) {
			refPath = filepath.Join(baseDir, refPath)
		}
		data, err := os.ReadFile(refPath)
		if err != nil {
			return nil, nil, apcerrors.New(apcerrors.KindSchemaNotFound, fmt.Sprintf("schema_ref %s", raw.SchemaRef)).WithDetail("cause", err.Error())
		}
		var doc struct {
			InputSchema  map[string]any `yaml:"input_schema"`
			OutputSchema map[string]any `yaml:"output_schema"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, nil, apcerrors.New(apcerrors.KindSchemaParseError, fmt.Sprintf("schema_ref %s", raw.SchemaRef)).WithDetail("cause", err.Error())
		}
		in := doc.InputSchema
		out := doc.OutputSchema
		if in == nil {
			in = schema.EmptyObjectJSONSchema()
		}
		if out == nil {
			out = schema.EmptyObjectJSONSchema()
		}
		return schema.Convert(in), schema.Convert(out), nil
	}

	return permissiveSchema(), permissiveSchema(), nil
}

func permissiveSchema() *schema.RuntimeSchema {
	s := schema.Convert(schema.EmptyObjectJSONSchema())
	s.Kind = schema.KindUnknown
	return s
}
