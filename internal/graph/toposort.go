package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/gasoline/internal/keypath"
)

// siblingGraph maps a child key to the keys of the siblings it depends on.
type siblingGraph map[string][]string

// buildSiblingGraph collects, for every child of the container at path,
// the sibling keys its dependencies resolve to. Dependencies outside the
// container are ignored here; they are hoisted instead.
func buildSiblingGraph(path keypath.Path, keys []string, children map[string]Node) (siblingGraph, error) {
	graph := make(siblingGraph, len(keys))
	for _, k := range keys {
		child := children[k]
		deps := child.Dependencies()
		edges := []string{}
		for _, name := range slices.Sorted(maps.Keys(deps)) {
			dep := deps[name]
			if !dep.IsLinked() {
				return nil, &LinkError{
					Code:    ErrCodeUnlinkedDependency,
					Path:    child.KeyPath().String(),
					Message: fmt.Sprintf("Node (%s) has unlinked dependencies", child.KeyPath()),
				}
			}
			if sib, ok := path.ChildKey(dep.KeyPath()); ok {
				if _, known := children[sib]; known && !slices.Contains(edges, sib) {
					edges = append(edges, sib)
				}
			}
		}
		graph[k] = edges
	}
	return graph, nil
}

// sortChildren orders the children of the container at path so that every
// child comes after the siblings it depends on. Ties keep key order.
//
// The algorithm:
//  1. Build child → sibling dependency edges
//  2. Run Tarjan's algorithm; SCCs are emitted dependencies first
//  3. Any SCC with more than one member or a self-loop is a cycle
func sortChildren(path keypath.Path, keys []string, children map[string]Node) ([]string, error) {
	graph, err := buildSiblingGraph(path, keys, children)
	if err != nil {
		return nil, err
	}

	sccs := tarjanSCC(keys, graph)
	order := make([]string, 0, len(keys))
	for _, scc := range sccs {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycle := cyclePath(scc, graph)
			return nil, &LinkError{
				Code:    ErrCodeDependencyCycle,
				Path:    path.String(),
				Message: fmt.Sprintf("Dependency cycle between children: %s", strings.Join(cycle, " -> ")),
				Cycle:   cycle,
			}
		}
		order = append(order, scc[0])
	}
	return order, nil
}

func hasSelfLoop(node string, graph siblingGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Roots are visited in keys order, so the result is deterministic.
func tarjanSCC(keys []string, graph siblingGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, k := range keys {
		if _, visited := indices[k]; !visited {
			strongConnect(k)
		}
	}
	return sccs
}

// cyclePath walks one cycle inside scc starting from its smallest key and
// returns it with the first key repeated at the end.
func cyclePath(scc []string, graph siblingGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, k := range scc {
		members[k] = true
	}
	start := slices.Min(scc)

	path := []string{start}
	seen := map[string]bool{start: true}
	cur := start
	for {
		next := ""
		for _, w := range graph[cur] {
			if w == start {
				return append(path, start)
			}
			if members[w] && !seen[w] && next == "" {
				next = w
			}
		}
		if next == "" {
			return append(path, start)
		}
		seen[next] = true
		path = append(path, next)
		cur = next
	}
}
