package registry

import (
	"fmt"
	"sort"

	"github.com/artpar/apcore/apcerrors"
)

// OrderDiscovered topologically sorts discovered modules by declared
// dependency per §4.3, using Kahn's algorithm with deterministic
// tie-breaking (lowest module id first among modules with equal
// in-degree, so ordering is reproducible across runs).
//
// An unknown required dependency fails the whole discovery batch with
// ModuleLoadError. An unknown optional dependency is dropped from the
// graph (the depending module is still ordered, just not constrained by
// it). A cycle is reported as CircularDependency with the offending path.
func OrderDiscovered(discovered []DiscoveredModule) ([]DiscoveredModule, error) {
	byID := make(map[string]DiscoveredModule, len(discovered))
	for _, d := range discovered {
		byID[d.ModuleID] = d
	}

	// edges[a] = modules that must come before a (a depends on them).
	edges := make(map[string][]string, len(discovered))
	indegree := make(map[string]int, len(discovered))
	for _, d := range discovered {
		indegree[d.ModuleID] = 0
	}

	for _, d := range discovered {
		for _, dep := range d.Dependencies {
			if _, ok := byID[dep.ModuleID]; !ok {
				if dep.Optional {
					continue
				}
				return nil, apcerrors.ModuleLoadError(
					fmt.Sprintf("module %q requires unknown dependency %q", d.ModuleID, dep.ModuleID), nil)
			}
			edges[d.ModuleID] = append(edges[d.ModuleID], dep.ModuleID)
			indegree[d.ModuleID]++
		}
	}

	// dependents[x] = modules that depend on x, for decrementing indegree.
	dependents := make(map[string][]string)
	for id, deps := range edges {
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var ordered []string
	remaining := indegree
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)

		for _, dependent := range dependents[next] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(ordered) != len(discovered) {
		cyclePath := extractCycle(discovered, ordered)
		return nil, apcerrors.CircularDependency(cyclePath)
	}

	// ordered currently lists dependencies-first; Registry.Register wants
	// modules registered in the same order so a later Register can assume
	// its dependencies already exist.
	out := make([]DiscoveredModule, 0, len(ordered))
	for _, id := range ordered {
		out = append(out, byID[id])
	}
	return out, nil
}

// extractCycle finds one simple cycle among the modules that never
// reached zero indegree, returning a path whose first and last elements
// are the same module id.
func extractCycle(discovered []DiscoveredModule, resolved []string) []string {
	done := make(map[string]bool, len(resolved))
	for _, id := range resolved {
		done[id] = true
	}

	byID := make(map[string]DiscoveredModule, len(discovered))
	var stuck []string
	for _, d := range discovered {
		byID[d.ModuleID] = d
		if !done[d.ModuleID] {
			stuck = append(stuck, d.ModuleID)
		}
	}
	sort.Strings(stuck)
	if len(stuck) == 0 {
		return nil
	}

	start := stuck[0]
	visited := map[string]int{start: 0}
	path := []string{start}
	current := start

	for {
		var next string
		for _, dep := range byID[current].Dependencies {
			if done[dep.ModuleID] {
				continue
			}
			if _, ok := byID[dep.ModuleID]; !ok {
				continue
			}
			next = dep.ModuleID
			break
		}
		if next == "" {
			return path
		}
		if idx, seen := visited[next]; seen {
			cycle := append(append([]string{}, path[idx:]...), next)
			return cycle
		}
		visited[next] = len(path)
		path = append(path, next)
		current = next
	}
}
