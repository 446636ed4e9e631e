// Package policy implements the six dispatch rules from SPEC_FULL §4.C: each
// exposes has_next/get_next over the current SimState, differing only in
// tie-break among tasks that are both ready (precedence-clear) and
// dispatchable (broker can bind every required-resource slot).
package policy

import (
	"sort"

	"github.com/srcpsp/deepthought/pkg/broker"
	"github.com/srcpsp/deepthought/pkg/domain"
)

// ArcSet is the additional-arcs overlay ArcGA contributes on top of the
// static DAG: a set of extra precedence edges u -> v.
type ArcSet [][2]int

// extraPreds indexes an ArcSet by successor for O(1) predecessor lookups.
func (a ArcSet) extraPreds() map[int][]int {
	out := make(map[int][]int)
	for _, e := range a {
		out[e[1]] = append(out[e[1]], e[0])
	}
	return out
}

// SimState is the mutable view a policy dispatches against: one job
// (already a per-worker RuntimeView, see domain.Job.Clone), its static
// graph, the additional arcs overlay, and the broker owning resource
// counters. Single-threaded per SPEC_FULL §5 — no internal locking.
type SimState struct {
	Job        *domain.Job
	Graph      *domain.Graph
	Arcs       ArcSet
	Broker     *broker.Broker
	extraPreds map[int][]int
}

// NewSimState builds a SimState for one simulation run.
func NewSimState(job *domain.Job, graph *domain.Graph, arcs ArcSet, b *broker.Broker) *SimState {
	return &SimState{Job: job, Graph: graph, Arcs: arcs, Broker: b, extraPreds: arcs.extraPreds()}
}

// PredecessorsFinished reports whether every static and augmented
// predecessor of taskID has finished.
func (s *SimState) PredecessorsFinished(taskID int) bool {
	for _, p := range s.Graph.Predecessors(taskID) {
		if !s.Job.Tasks[p].FinishedFlag {
			return false
		}
	}
	for _, p := range s.extraPreds[taskID] {
		if !s.Job.Tasks[p].FinishedFlag {
			return false
		}
	}
	return true
}

// Ready returns task ids, in ascending order, that are not yet dispatched
// and whose predecessors (static + augmented) have all finished. It does
// not check resource availability — that is the broker's concern, checked
// separately so policies can distinguish "ready" from "dispatchable"
// (SPEC_FULL §4.C).
func (s *SimState) Ready() []int {
	var out []int
	for _, id := range s.Graph.Nodes() {
		t := s.Job.Tasks[id]
		if t.StartedFlag {
			continue
		}
		if s.PredecessorsFinished(id) {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// Dispatchable filters Ready() down to tasks the broker can currently bind.
func (s *SimState) Dispatchable() []int {
	var out []int
	for _, id := range s.Ready() {
		if s.Broker.CanBind(s.Job.Tasks[id]) {
			out = append(out, id)
		}
	}
	return out
}

// UnfinishedDirectSuccessors returns the number of direct static successors of
// taskID that are not yet finished — used by OptimizedDependency's tie-break
// (SPEC_FULL §4.C).
func (s *SimState) UnfinishedDirectSuccessors(taskID int) int {
	n := 0
	for _, succ := range s.Graph.Successors(taskID) {
		if !s.Job.Tasks[succ].FinishedFlag {
			n++
		}
	}
	return n
}
