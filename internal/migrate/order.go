package migrate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/registry"
)

// CycleWarning reports collections that depend on each other.
//
// Cycles are warnings, not errors: a provider that references its center
// while the center lists its providers is ordinary data modelling. The
// cycle is broken by name order.
type CycleWarning struct {
	Collections []string `json:"collections"`
	Message     string   `json:"message"`
}

// dependencyGraph maps a collection to the collections it depends on.
type dependencyGraph map[string][]string

func buildDependencyGraph(reg *registry.Registry, rules []ir.AccessRule) dependencyGraph {
	graph := make(dependencyGraph, reg.Len())
	add := func(from, to string) {
		if to == from || !reg.Has(to) || slices.Contains(graph[from], to) {
			return
		}
		graph[from] = append(graph[from], to)
	}

	for _, s := range reg.All() {
		graph[s.Name] = []string{}
		for _, ref := range s.References() {
			add(s.Name, ref)
		}
	}
	for _, r := range rules {
		if !reg.Has(r.Collection) {
			continue
		}
		for _, target := range ir.RelationshipTargets(r.Predicate) {
			add(r.Collection, target)
		}
	}
	for name := range graph {
		slices.Sort(graph[name])
	}
	return graph
}

// DependencyOrder returns registered collections dependencies first, with
// name order breaking every tie, plus a warning per dependency cycle.
func DependencyOrder(reg *registry.Registry, rules []ir.AccessRule) ([]string, []CycleWarning) {
	return dependencyOrder(reg, rules)
}

func dependencyOrder(reg *registry.Registry, rules []ir.AccessRule) ([]string, []CycleWarning) {
	graph := buildDependencyGraph(reg, rules)
	sccs := tarjanSCC(graph)

	// Condense: each SCC becomes one node named by its smallest member.
	component := make(map[string]int, len(graph))
	for i, scc := range sccs {
		slices.Sort(scc)
		for _, name := range scc {
			component[name] = i
		}
	}

	pending := make([]int, len(sccs))
	dependents := make([][]int, len(sccs))
	for from, deps := range graph {
		for _, to := range deps {
			cf, ct := component[from], component[to]
			if cf == ct {
				continue
			}
			pending[cf]++
			dependents[ct] = append(dependents[ct], cf)
		}
	}

	var ready []int
	for i := range sccs {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	var order []string
	var warnings []CycleWarning
	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b int) int {
			return strings.Compare(sccs[a][0], sccs[b][0])
		})
		next := ready[0]
		ready = ready[1:]

		scc := sccs[next]
		order = append(order, scc...)
		if len(scc) > 1 {
			warnings = append(warnings, CycleWarning{
				Collections: slices.Clone(scc),
				Message:     fmt.Sprintf("collections depend on each other: %s", strings.Join(scc, " <-> ")),
			})
		}
		for _, d := range dependents[next] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return order, warnings
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes and successors are visited in name order so the result is
// deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
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

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}
