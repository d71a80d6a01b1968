package causal

import (
	"fmt"
	"strings"
)

// CycleError reports a precedence cycle. Path lists hbx enrollment ids along
// the cycle, ending where it started.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("causal cycle: %s", strings.Join(e.Path, " -> "))
}

func (g *Graph) cycleError() *CycleError {
	for _, scc := range g.tarjanSCC() {
		if len(scc) > 1 {
			path := g.reconstructCyclePath(scc)
			ids := make([]string, len(path))
			for i, n := range path {
				ids[i] = g.events[n].HbxEnrollmentID
			}
			return &CycleError{Path: ids}
		}
	}
	return &CycleError{}
}

// tarjanSCC finds strongly connected components. Nodes are visited in input
// order so the reported cycle is deterministic.
func (g *Graph) tarjanSCC() [][]int {
	n := len(g.events)
	var (
		index   = 0
		stack   []int
		indices = make([]int, n)
		lowlink = make([]int, n)
		onStack = make([]bool, n)
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.succ[v] {
			if indices[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int
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

	for v := 0; v < n; v++ {
		if indices[v] < 0 {
			strongConnect(v)
		}
	}
	return sccs
}

// reconstructCyclePath walks from the lowest node of the SCC through
// unvisited members until it can close the loop.
func (g *Graph) reconstructCyclePath(scc []int) []int {
	member := make(map[int]bool, len(scc))
	start := scc[0]
	for _, v := range scc {
		member[v] = true
		start = min(start, v)
	}

	path := []int{start}
	visited := map[int]bool{start: true}
	current := start
	for {
		next := -1
		for _, w := range g.succ[current] {
			if w == start {
				next = w
				break
			}
		}
		if next < 0 {
			for _, w := range g.succ[current] {
				if member[w] && !visited[w] {
					next = w
					break
				}
			}
		}
		if next < 0 {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
