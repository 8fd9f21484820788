package schema

import (
	"fmt"
	"sort"
)

// DependencyGraph maps a table name to the names of the tables it
// references via foreign key.
type DependencyGraph map[string][]string

// CycleError reports a foreign-key cycle discovered while ordering tables.
// The reconciler does not call OrderTables; a cycle between migrations is
// reported by OrderMigrations as gatewayerr.KindCyclicSchema instead.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	path := ""
	for i, name := range e.Cycle {
		if i > 0 {
			path += " -> "
		}
		path += name
	}
	if len(e.Cycle) > 0 {
		path += " -> " + e.Cycle[0]
	}
	return fmt.Sprintf("circular foreign-key dependency: %s", path)
}

// BuildDependencyGraph derives the FK dependency graph from a set of
// declarative tables. FKRefs on a Table names the tables it references.
func BuildDependencyGraph(tables []Table) DependencyGraph {
	graph := make(DependencyGraph, len(tables))
	for _, t := range tables {
		deps := make([]string, 0, len(t.FKRefs))
		for ref := range t.FKRefs {
			deps = append(deps, ref)
		}
		sort.Strings(deps)
		graph[t.Name] = deps
	}
	return graph
}

// DetectCycles runs a DFS over the graph and returns every cycle found.
// An empty result means the graph is a DAG.
func DetectCycles(graph DependencyGraph) [][]string {
	var cycles [][]string
	visited := map[string]bool{}
	var recStack []string
	onStack := map[string]bool{}

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	var dfs func(node string)
	dfs = func(node string) {
		visited[node] = true
		recStack = append(recStack, node)
		onStack[node] = true

		for _, dep := range graph[node] {
			if !visited[dep] {
				dfs(dep)
			} else if onStack[dep] {
				start := -1
				for i, n := range recStack {
					if n == dep {
						start = i
						break
					}
				}
				if start >= 0 {
					cycle := append([]string(nil), recStack[start:]...)
					cycles = append(cycles, cycle)
				}
			}
		}

		recStack = recStack[:len(recStack)-1]
		onStack[node] = false
	}

	for _, name := range names {
		if !visited[name] {
			dfs(name)
		}
	}
	return cycles
}

// TopologicalSort orders table names so that every table is preceded by
// everything it references, using Kahn's algorithm. Ties among nodes with
// no remaining incoming edges are broken by taking the lexicographically
// greatest candidate first, matching the ordering the reconciliation plan
// has always produced for a given bundle.
func TopologicalSort(graph DependencyGraph) ([]string, error) {
	inDegree := map[string]int{}
	allNodes := map[string]bool{}

	for node, deps := range graph {
		allNodes[node] = true
		if _, ok := inDegree[node]; !ok {
			inDegree[node] = 0
		}
		for _, dep := range deps {
			allNodes[dep] = true
			inDegree[node]++
		}
	}
	for node := range allNodes {
		if _, ok := inDegree[node]; !ok {
			inDegree[node] = 0
		}
	}

	adj := map[string][]string{}
	for node, deps := range graph {
		for _, dep := range deps {
			adj[dep] = append(adj[dep], node)
		}
	}

	var queue []string
	for node, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, node)
		}
	}
	sort.Strings(queue)

	var result []string
	for len(queue) > 0 {
		node := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		result = append(result, node)

		for _, dependent := range adj[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(allNodes) {
		cycles := DetectCycles(graph)
		if len(cycles) > 0 {
			return nil, &CycleError{Cycle: cycles[0]}
		}
		return nil, &CycleError{}
	}

	return result, nil
}

// OrderTables returns the table names in dependency-safe creation order,
// or a *CycleError if the foreign keys form a cycle.
func OrderTables(tables []Table) ([]string, error) {
	graph := BuildDependencyGraph(tables)
	return TopologicalSort(graph)
}
