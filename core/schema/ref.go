package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/artpar/apcore/apcerrors"
	"gopkg.in/yaml.v3"
)

const defaultMaxRefDepth = 32

// RefResolver resolves `$ref` entries in a JSON-Schema document (§4.5.2).
// It supports three ref syntaxes:
//   - "#/pointer/into/current/document"
//   - "relative/path.yaml" or "relative/path.yaml#/pointer"
//   - "apcore://module.id/pointer/segments"
//
// All file-based refs must resolve inside SchemasRoot; MaxDepth bounds ref
// chains before declaring a cycle.
type RefResolver struct {
	SchemasRoot string
	MaxDepth    int

	fileCache map[string]map[string]any
}

// NewRefResolver builds a resolver rooted at schemasRoot.
func NewRefResolver(schemasRoot string) *RefResolver {
	return &RefResolver{
		SchemasRoot: schemasRoot,
		MaxDepth:    defaultMaxRefDepth,
		fileCache:   make(map[string]map[string]any),
	}
}

// Resolve deep-copies doc and resolves every $ref in place, relative to
// baseDir (the directory the document itself was loaded from).
func (r *RefResolver) Resolve(doc map[string]any, baseDir string) (map[string]any, error) {
	copied := deepCopyMap(doc)
	resolved, err := r.resolveNode(copied, doc, baseDir, nil, 0)
	if err != nil {
		return nil, err
	}
	out, ok := resolved.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return out, nil
}

func (r *RefResolver) resolveNode(node any, rootDoc any, baseDir string, visited []string, depth int) (any, error) {
	if depth > r.MaxDepth {
		return nil, apcerrors.SchemaCircularRef(strings.Join(visited, " -> "))
	}

	switch n := node.(type) {
	case map[string]any:
		refRaw, hasRef := n["$ref"]
		if hasRef {
			ref, _ := refRaw.(string)
			for _, v := range visited {
				if v == ref {
					return nil, apcerrors.SchemaCircularRef(ref)
				}
			}

			target, newBaseDir, err := r.lookupRef(ref, rootDoc, baseDir)
			if err != nil {
				return nil, err
			}

			resolvedTarget, err := r.resolveNode(target, rootDoc, newBaseDir, append(visited, ref), depth+1)
			if err != nil {
				return nil, err
			}

			overlay, ok := resolvedTarget.(map[string]any)
			if !ok {
				overlay = map[string]any{}
			} else {
				overlay = deepCopyMap(overlay)
			}
			for k, v := range n {
				if k == "$ref" {
					continue
				}
				overlay[k] = v
			}
			return overlay, nil
		}

		out := make(map[string]any, len(n))
		for k, v := range n {
			resolved, err := r.resolveNode(v, rootDoc, baseDir, visited, depth)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil

	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			resolved, err := r.resolveNode(v, rootDoc, baseDir, visited, depth)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return node, nil
	}
}

// lookupRef resolves a single $ref string to its target node, along with
// the base directory subsequent relative refs inside that target should
// use.
func (r *RefResolver) lookupRef(ref string, rootDoc any, baseDir string) (any, string, error) {
	switch {
	case strings.HasPrefix(ref, "#/"):
		target, err := resolvePointer(rootDoc, ref[1:])
		if err != nil {
			return nil, "", err
		}
		return target, baseDir, nil

	case strings.HasPrefix(ref, "apcore://"):
		rest := strings.TrimPrefix(ref, "apcore://")
		moduleID, pointer, _ := strings.Cut(rest, "/")
		file := filepath.Join(r.SchemasRoot, filepath.FromSlash(strings.ReplaceAll(moduleID, ".", "/"))+".schema.yaml")
		doc, err := r.loadFile(file)
		if err != nil {
			return nil, "", err
		}
		target, err := resolvePointer(doc, pointer)
		if err != nil {
			return nil, "", err
		}
		return target, filepath.Dir(file), nil

	default:
		filePart, pointer, hasPointer := strings.Cut(ref, "#/")
		file := filepath.Join(baseDir, filepath.FromSlash(filePart))
		doc, err := r.loadFile(file)
		if err != nil {
			return nil, "", err
		}
		if !hasPointer {
			return doc, filepath.Dir(file), nil
		}
		target, err := resolvePointer(doc, pointer)
		if err != nil {
			return nil, "", err
		}
		return target, filepath.Dir(file), nil
	}
}

// loadFile loads and caches a YAML ref target, guarding against path
// traversal outside SchemasRoot.
func (r *RefResolver) loadFile(path string) (map[string]any, error) {
	absRoot, err := filepath.Abs(r.SchemasRoot)
	if err != nil {
		return nil, apcerrors.SchemaParseError("resolve schemas root", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, apcerrors.SchemaParseError("resolve ref path", err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, apcerrors.New(apcerrors.KindSchemaParseError, fmt.Sprintf("ref %q escapes schemas root", path))
	}

	if cached, ok := r.fileCache[absPath]; ok {
		return cached, nil
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, apcerrors.SchemaParseError(fmt.Sprintf("read ref file %q", path), err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, apcerrors.SchemaParseError(fmt.Sprintf("parse ref file %q", path), err)
	}
	r.fileCache[absPath] = doc
	return doc, nil
}

// resolvePointer walks a JSON pointer (already stripped of its leading
// "#/") through doc, decoding ~1 -> / and ~0 -> ~ in each segment.
func resolvePointer(doc any, pointer string) (any, error) {
	if pointer == "" {
		return doc, nil
	}
	segments := strings.Split(pointer, "/")
	current := doc
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		decoded := decodePointerSegment(seg)
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[decoded]
			if !ok {
				return nil, apcerrors.New(apcerrors.KindSchemaParseError, fmt.Sprintf("pointer segment %q not found", decoded))
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(decoded)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, apcerrors.New(apcerrors.KindSchemaParseError, fmt.Sprintf("pointer segment %q is not a valid array index", decoded))
			}
			current = node[idx]
		default:
			return nil, apcerrors.New(apcerrors.KindSchemaParseError, fmt.Sprintf("cannot descend into %T at %q", current, decoded))
		}
	}
	return current, nil
}

func decodePointerSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "~1", "/")
	seg = strings.ReplaceAll(seg, "~0", "~")
	return seg
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch n := v.(type) {
	case map[string]any:
		return deepCopyMap(n)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
