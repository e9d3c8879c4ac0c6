package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/core/loader"
	"github.com/artpar/apcore/core/module"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// manifestExt is the file extension a discoverable module manifest must
// carry. A manifest names the registered loader symbol for its module
// body instead of a file path, since Go cannot dynamically import a
// source file the way the original runtime did.
const manifestExt = ".module.yaml"

const defaultMaxDepth = 8

var skipDirNames = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	".git":         true,
}

// rawManifest is the on-disk shape of a *.module.yaml file.
type rawManifest struct {
	EntryPoint   string           `yaml:"entry_point"`
	ExportName   string           `yaml:"export,omitempty"`
	Description  string           `yaml:"description,omitempty"`
	Name         string           `yaml:"name,omitempty"`
	Tags         []string         `yaml:"tags,omitempty"`
	Version      string           `yaml:"version,omitempty"`
	Documentation string          `yaml:"documentation,omitempty"`
	Annotations  map[string]any   `yaml:"annotations,omitempty"`
	Metadata     map[string]any   `yaml:"metadata,omitempty"`
	Dependencies []DependencyInfo `yaml:"dependencies,omitempty"`
}

// DiscoveredModule is one manifest found by a Discoverer, resolved to a
// concrete module instance plus its metadata and declared dependencies,
// per §3's DiscoveredModule / §4.2.
type DiscoveredModule struct {
	ModuleID     string
	Path         string
	Module       *module.Module
	Meta         Meta
	Dependencies []DependencyInfo
}

// Discoverer finds module manifests under one or more roots. Swappable
// via SetDiscoverer so tests and alternate storage backends (e.g. an
// embedded asset tree) don't need a real filesystem.
type Discoverer interface {
	Discover(roots []string) ([]DiscoveredModule, error)
}

// FilesystemDiscoverer walks directory trees for *.module.yaml manifests
// and resolves each to a Factory registered in a loader.Registry.
type FilesystemDiscoverer struct {
	MaxDepth int
	Loader   *loader.Registry
	Logger   zerolog.Logger
}

// NewFilesystemDiscoverer builds a discoverer using the process-wide
// loader registry and the spec's default max traversal depth of 8.
func NewFilesystemDiscoverer() *FilesystemDiscoverer {
	return &FilesystemDiscoverer{MaxDepth: defaultMaxDepth, Loader: loader.Global(), Logger: zerolog.Nop()}
}

// Discover walks each root (each root gets its basename as an id
// namespace prefix when more than one root is given, per §4.2's
// multi-root rule) collecting manifests, skipping dotfiles/dot-dirs,
// underscore-prefixed entries, and conventional non-source directory
// names, and refusing to follow symlinked directories to avoid cycles.
func (d *FilesystemDiscoverer) Discover(roots []string) ([]DiscoveredModule, error) {
	multiRoot := len(roots) > 1
	seen := newIDCollisionTracker()
	var out []DiscoveredModule

	for _, root := range roots {
		prefix := ""
		if multiRoot {
			prefix = filepath.Base(filepath.Clean(root)) + "."
		}
		found, err := d.discoverRoot(root, prefix, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out, nil
}

// idCollisionTracker distinguishes exact-duplicate canonical ids (first
// wins, rest logged+skipped) from merely case-insensitive collisions
// (logged, not fatal, both register) per §4.2.
type idCollisionTracker struct {
	exact map[string]string // exact moduleID -> path first seen
	lower map[string]string // lowercased moduleID -> exact moduleID first seen
}

func newIDCollisionTracker() *idCollisionTracker {
	return &idCollisionTracker{exact: make(map[string]string), lower: make(map[string]string)}
}

// observe records disc and reports whether it should be kept. Exact
// duplicates are dropped (first-seen wins); case-insensitive collisions
// between distinct exact ids are kept but logged.
func (t *idCollisionTracker) observe(logger zerolog.Logger, disc DiscoveredModule) (keep bool) {
	if existingPath, dup := t.exact[disc.ModuleID]; dup {
		logger.Warn().Str("module_id", disc.ModuleID).Str("first_path", existingPath).
			Str("skipped_path", disc.Path).Msg("duplicate canonical module id, keeping first")
		return false
	}
	t.exact[disc.ModuleID] = disc.Path

	lowerID := strings.ToLower(disc.ModuleID)
	if firstExact, collides := t.lower[lowerID]; collides && firstExact != disc.ModuleID {
		logger.Warn().Str("module_id", disc.ModuleID).Str("collides_with", firstExact).
			Str("path", disc.Path).Msg("module id collides case-insensitively with another module id")
	} else if !collides {
		t.lower[lowerID] = disc.ModuleID
	}
	return true
}

func (d *FilesystemDiscoverer) discoverRoot(root, idPrefix string, seen *idCollisionTracker) ([]DiscoveredModule, error) {
	var out []DiscoveredModule
	visitedReal := make(map[string]bool)

	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if depth > d.MaxDepth {
			return nil
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("reading %s: %w", dir, err)
		}

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				continue
			}
			full := filepath.Join(dir, name)

			if entry.IsDir() {
				if skipDirNames[name] {
					continue
				}
				real, err := filepath.EvalSymlinks(full)
				if err != nil {
					continue
				}
				if visitedReal[real] {
					continue
				}
				visitedReal[real] = true
				if err := walk(full, depth+1); err != nil {
					return err
				}
				continue
			}

			if !strings.HasSuffix(name, manifestExt) {
				continue
			}
			if isTestFile(name) {
				continue
			}

			disc, err := d.loadManifest(full, root, idPrefix)
			if err != nil {
				d.Logger.Warn().Err(err).Str("path", full).Msg("skipping module manifest")
				continue
			}

			if !seen.observe(d.Logger, disc) {
				continue
			}
			out = append(out, disc)
		}
		return nil
	}

	if err := walk(root, 0); err != nil {
		return nil, err
	}
	return out, nil
}

func isTestFile(name string) bool {
	stem := strings.TrimSuffix(name, manifestExt)
	return strings.HasSuffix(stem, "_test") || strings.HasSuffix(stem, ".test")
}

func (d *FilesystemDiscoverer) loadManifest(path, root, idPrefix string) (DiscoveredModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DiscoveredModule{}, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return DiscoveredModule{}, apcerrors.New(apcerrors.KindBindingFileInvalid,
			fmt.Sprintf("parsing manifest %s", path)).WithDetail("cause", err.Error())
	}
	if raw.EntryPoint == "" {
		return DiscoveredModule{}, apcerrors.New(apcerrors.KindBindingFileInvalid,
			fmt.Sprintf("manifest %s has no entry_point", path))
	}

	moduleID := idPrefix + canonicalID(path, root)

	mod, err := d.Loader.ResolveEntryPoint(raw.EntryPoint, raw.ExportName)
	if err != nil {
		return DiscoveredModule{}, err
	}
	mod.ModuleID = moduleID

	return DiscoveredModule{
		ModuleID: moduleID,
		Path:     path,
		Module:   mod,
		Meta: Meta{
			Description:   raw.Description,
			Name:          raw.Name,
			Tags:          raw.Tags,
			Version:       raw.Version,
			Documentation: raw.Documentation,
			Annotations:   raw.Annotations,
			Metadata:      raw.Metadata,
			Dependencies:  raw.Dependencies,
		},
		Dependencies: raw.Dependencies,
	}, nil
}

// canonicalID derives a module's dotted id from its manifest path
// relative to root: strip the manifest extension, replace path
// separators with dots.
func canonicalID(path, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = strings.TrimSuffix(rel, manifestExt)
	rel = filepath.ToSlash(rel)
	return strings.ReplaceAll(rel, "/", ".")
}
