package validator

import (
	"cmp"
	"maps"
	"slices"
)

type cycleMember struct {
	field string
	path  []string
}

// detectCycles finds the strongly connected components of the virtual-to-virtual
// edges of graph (dependencies that are not themselves graph nodes are base
// attributes and ignored). Every member of a component with more than one node,
// or with a self-loop, is reported once with the shortest cycle through it.
func detectCycles(graph map[string][]string) []cycleMember {
	var out []cycleMember
	for _, scc := range stronglyConnected(graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		in := make(map[string]bool, len(scc))
		for _, n := range scc {
			in[n] = true
		}
		for _, member := range scc {
			out = append(out, cycleMember{field: member, path: shortestCycle(graph, in, member)})
		}
	}
	slices.SortFunc(out, func(a, b cycleMember) int { return cmp.Compare(a.field, b.field) })
	return out
}

// stronglyConnected is Tarjan's algorithm over the nodes of graph in name order.
func stronglyConnected(graph map[string][]string) [][]string {
	index := make(map[string]int, len(graph))
	low := make(map[string]int, len(graph))
	onStack := make(map[string]bool, len(graph))
	var stack []string
	var out [][]string
	next := 0

	var visit func(n string)
	visit = func(n string) {
		index[n] = next
		low[n] = next
		next++
		stack = append(stack, n)
		onStack[n] = true

		for _, dep := range graph[n] {
			if _, virtual := graph[dep]; !virtual {
				continue
			}
			if _, seen := index[dep]; !seen {
				visit(dep)
				low[n] = min(low[n], low[dep])
			} else if onStack[dep] {
				low[n] = min(low[n], index[dep])
			}
		}

		if low[n] != index[n] {
			return
		}
		var scc []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			scc = append(scc, top)
			if top == n {
				break
			}
		}
		slices.Sort(scc)
		out = append(out, scc)
	}

	for _, n := range slices.Sorted(maps.Keys(graph)) {
		if _, seen := index[n]; !seen {
			visit(n)
		}
	}
	return out
}

// shortestCycle walks breadth-first from start inside one component and
// returns the path back to start, for example [a b a].
func shortestCycle(graph map[string][]string, in map[string]bool, start string) []string {
	parent := map[string]string{}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, dep := range graph[n] {
			if !in[dep] {
				continue
			}
			if dep == start {
				path := []string{start}
				for at := n; at != start; at = parent[at] {
					path = append(path, at)
				}
				slices.Reverse(path[1:])
				return append(path, start)
			}
			if _, seen := parent[dep]; !seen {
				parent[dep] = n
				queue = append(queue, dep)
			}
		}
	}
	return []string{start, start}
}
