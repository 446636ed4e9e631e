package domain

import (
	"math/rand"
	"sort"
)

// Graph is a precedence DAG over task ids holding the static predecessor
// edges only; ArcGA's additional arcs are passed separately as an overlay
// (PathExists's extraSuccs, policy.SimState). It is the shared
// reachability/topology engine used by ListGA's random-topological-order
// initializer, ArcGA's candidate-arc enumeration, and the policy layer's
// has_next predecessor check.
type Graph struct {
	nodes []int
	preds map[int][]int // task id -> static predecessor ids
	succs map[int][]int // task id -> static successor ids
}

// BuildGraph constructs the static precedence DAG from a job's tasks.
func BuildGraph(j *Job) *Graph {
	g := &Graph{
		nodes: j.SortedTaskIDs(),
		preds: make(map[int][]int),
		succs: make(map[int][]int),
	}
	for _, id := range g.nodes {
		t := j.Tasks[id]
		preds := append([]int(nil), t.Predecessors...)
		sort.Ints(preds)
		g.preds[id] = preds
		for _, p := range preds {
			g.succs[p] = append(g.succs[p], id)
		}
	}
	for _, id := range g.nodes {
		sort.Ints(g.succs[id])
	}
	return g
}

// Nodes returns task ids in ascending order.
func (g *Graph) Nodes() []int { return g.nodes }

// Predecessors returns the static predecessor ids of task id.
func (g *Graph) Predecessors(id int) []int { return g.preds[id] }

// Successors returns the static successor ids of task id.
func (g *Graph) Successors(id int) []int { return g.succs[id] }

// RandomTopoOrder returns a random topological order of the static
// DAG: at each step, pick uniformly among the nodes whose predecessors have
// already been placed. Used by ListGA's population initializer (SPEC_FULL
// §4.E) — ArcGA's arc set is never applied here, only the static graph.
func (g *Graph) RandomTopoOrder(rng *rand.Rand) []int {
	indeg := make(map[int]int, len(g.nodes))
	for _, id := range g.nodes {
		indeg[id] = len(g.preds[id])
	}
	var ready []int
	for _, id := range g.nodes {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	order := make([]int, 0, len(g.nodes))
	for len(ready) > 0 {
		i := rng.Intn(len(ready))
		id := ready[i]
		ready = append(ready[:i], ready[i+1:]...)
		order = append(order, id)
		for _, s := range g.succs[id] {
			indeg[s]--
			if indeg[s] == 0 {
				ready = append(ready, s)
			}
		}
	}
	return order
}

// reachableFrom computes the set of nodes reachable from start by following
// edges built from preds (successor direction: preds[v] contains u means
// u->v, so reachability from u follows succs).
func (g *Graph) reachableFrom(start int, succs map[int][]int) map[int]struct{} {
	seen := map[int]struct{}{start: {}}
	stack := []int{start}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		for _, s := range succs[cur] {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// PathExists reports whether u can reach v via the static edges plus any
// extraSuccs overlay (used for incremental reachability checks when ArcGA
// considers adding a candidate arc).
func (g *Graph) PathExists(u, v int, extraSuccs map[int][]int) bool {
	merged := make(map[int][]int, len(g.succs))
	for k, vs := range g.succs {
		merged[k] = vs
	}
	for k, vs := range extraSuccs {
		merged[k] = append(append([]int(nil), merged[k]...), vs...)
	}
	_, ok := g.reachableFrom(u, merged)[v]
	return ok
}

// CandidateArcs enumerates every ordered pair (u, v), u != v, such that
// neither u->v nor v->u holds transitively in the static DAG — the encoding
// space for ArcGA (SPEC_FULL §4.F).
func (g *Graph) CandidateArcs() [][2]int {
	reach := make(map[int]map[int]struct{}, len(g.nodes))
	for _, n := range g.nodes {
		reach[n] = g.reachableFrom(n, g.succs)
	}
	var out [][2]int
	for _, u := range g.nodes {
		for _, v := range g.nodes {
			if u == v {
				continue
			}
			if _, uv := reach[u][v]; uv {
				continue
			}
			if _, vu := reach[v][u]; vu {
				continue
			}
			out = append(out, [2]int{u, v})
		}
	}
	return out
}
