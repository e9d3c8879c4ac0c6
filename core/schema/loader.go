package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/artpar/apcore/apcerrors"
	"gopkg.in/yaml.v3"
)

// Strategy controls how Loader.GetSchema reconciles a YAML schema file
// against natively-supplied (Go-literal) schemas for the same module.
type Strategy string

const (
	// StrategyYAMLFirst tries the YAML file first; if it is missing and
	// both native schemas were supplied, those are wrapped instead. This
	// is the default.
	StrategyYAMLFirst Strategy = "yaml_first"
	// StrategyNativeFirst uses native schemas when both sides are
	// supplied; otherwise falls back to YAML.
	StrategyNativeFirst Strategy = "native_first"
	// StrategyYAMLOnly uses the YAML file only; natives are ignored.
	StrategyYAMLOnly Strategy = "yaml_only"
)

// Loader loads `{moduleId}.schema.yaml` files from a schemas root,
// resolves their $refs, and converts them to RuntimeSchema trees. It keeps
// a two-level cache: raw Definitions, and resolved (input, output) pairs.
type Loader struct {
	Root     string
	Strategy Strategy

	mu            sync.RWMutex
	rawCache      map[string]*Definition
	resolvedCache map[string][2]*Resolved // [0]=input [1]=output
	refResolver   *RefResolver
}

// NewLoader builds a Loader rooted at schemasRoot with the default
// yaml_first strategy.
func NewLoader(schemasRoot string) *Loader {
	return &Loader{
		Root:          schemasRoot,
		Strategy:      StrategyYAMLFirst,
		rawCache:      make(map[string]*Definition),
		resolvedCache: make(map[string][2]*Resolved),
		refResolver:   NewRefResolver(schemasRoot),
	}
}

// ClearCache drops both cache levels; schema caches are otherwise monotonic.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rawCache = make(map[string]*Definition)
	l.resolvedCache = make(map[string][2]*Resolved)
}

// pathFor maps a dotted module id to its schema file path under Root.
func (l *Loader) pathFor(moduleID string) string {
	rel := strings.ReplaceAll(moduleID, ".", string(filepath.Separator)) + ".schema.yaml"
	return filepath.Join(l.Root, rel)
}

// LoadDefinition reads and parses the raw schema definition for moduleID,
// without resolving $refs or converting.
func (l *Loader) LoadDefinition(moduleID string) (*Definition, error) {
	l.mu.RLock()
	if cached, ok := l.rawCache[moduleID]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	path := l.pathFor(moduleID)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apcerrors.SchemaNotFound(moduleID)
		}
		return nil, apcerrors.SchemaParseError(fmt.Sprintf("read schema for %q", moduleID), err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, apcerrors.SchemaParseError(fmt.Sprintf("parse schema for %q", moduleID), err)
	}

	def := &Definition{ModuleID: moduleID}
	if s, ok := doc["description"].(string); ok {
		def.Description = s
	}
	if s, ok := doc["version"].(string); ok {
		def.Version = s
	}
	if s, ok := doc["documentation"].(string); ok {
		def.Documentation = s
	}
	if s, ok := doc["$schema"].(string); ok {
		def.SchemaURL = s
	}
	def.InputSchema, _ = doc["input_schema"].(map[string]any)
	def.OutputSchema, _ = doc["output_schema"].(map[string]any)
	def.ErrorSchema, _ = doc["error_schema"].(map[string]any)
	def.Definitions, _ = doc["definitions"].(map[string]any)
	if def.InputSchema == nil || def.OutputSchema == nil || def.Description == "" {
		return nil, apcerrors.New(apcerrors.KindSchemaParseError, fmt.Sprintf("schema %q missing required input_schema/output_schema/description", moduleID))
	}

	// $defs merges into definitions.
	if defs, ok := doc["$defs"].(map[string]any); ok {
		if def.Definitions == nil {
			def.Definitions = make(map[string]any)
		}
		for k, v := range defs {
			def.Definitions[k] = v
		}
	}

	l.mu.Lock()
	l.rawCache[moduleID] = def
	l.mu.Unlock()
	return def, nil
}

// GetSchema resolves the (input, output) RuntimeSchema pair for moduleID,
// applying the loader's Strategy against optional native (Go-literal) JSON
// Schema fragments supplied by a bound module.
func (l *Loader) GetSchema(moduleID string, nativeInput, nativeOutput map[string]any) (*Resolved, *Resolved, error) {
	l.mu.RLock()
	if cached, ok := l.resolvedCache[moduleID]; ok {
		l.mu.RUnlock()
		return cached[0], cached[1], nil
	}
	l.mu.RUnlock()

	inJSON, outJSON, err := l.resolveStrategy(moduleID, nativeInput, nativeOutput)
	if err != nil {
		return nil, nil, err
	}

	in := &Resolved{ModuleID: moduleID, Direction: DirectionInput, JSONSchema: inJSON, Schema: Convert(inJSON)}
	out := &Resolved{ModuleID: moduleID, Direction: DirectionOutput, JSONSchema: outJSON, Schema: Convert(outJSON)}

	l.mu.Lock()
	l.resolvedCache[moduleID] = [2]*Resolved{in, out}
	l.mu.Unlock()
	return in, out, nil
}

func (l *Loader) resolveStrategy(moduleID string, nativeInput, nativeOutput map[string]any) (map[string]any, map[string]any, error) {
	bothNative := nativeInput != nil && nativeOutput != nil

	loadYAML := func() (map[string]any, map[string]any, error) {
		def, err := l.LoadDefinition(moduleID)
		if err != nil {
			return nil, nil, err
		}
		baseDir := filepath.Dir(l.pathFor(moduleID))
		in, err := l.refResolver.Resolve(def.InputSchema, baseDir)
		if err != nil {
			return nil, nil, err
		}
		out, err := l.refResolver.Resolve(def.OutputSchema, baseDir)
		if err != nil {
			return nil, nil, err
		}
		return in, out, nil
	}

	switch l.Strategy {
	case StrategyYAMLOnly:
		return loadYAML()

	case StrategyNativeFirst:
		if bothNative {
			return nativeInput, nativeOutput, nil
		}
		return loadYAML()

	default: // StrategyYAMLFirst
		in, out, err := loadYAML()
		if err != nil {
			if apcerrors.Is(err, apcerrors.KindSchemaNotFound) && bothNative {
				return nativeInput, nativeOutput, nil
			}
			return nil, nil, err
		}
		return in, out, nil
	}
}
