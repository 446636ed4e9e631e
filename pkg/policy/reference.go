package policy

import (
	"fmt"

	"github.com/srcpsp/deepthought/pkg/domain"
)

func init() {
	Register("Reference", func() Policy { return &referencePolicy{} })
	Register("OptimizedDependency", func() Policy { return &optimizedDependencyPolicy{} })
}

// priorityIndex maps task id to its position in the priority list, shared
// by every policy whose tie-break is "first in the priority list".
type priorityIndex struct {
	list []int
	pos  map[int]int
}

func (p *priorityIndex) init(priorityList []int) {
	p.list = priorityList
	p.pos = make(map[int]int, len(priorityList))
	for i, id := range priorityList {
		p.pos[id] = i
	}
}

func (p *priorityIndex) less(a, b int) bool {
	return p.pos[a] < p.pos[b]
}

// referencePolicy dispatches the dispatchable task earliest in the priority
// list. This is the baseline tie-break every other policy is compared
// against (SPEC_FULL §4.C table).
type referencePolicy struct {
	priorityIndex
	arcs ArcSet
}

func (p *referencePolicy) Initialize(job *domain.Job, priorityList []int, arcs ArcSet) error {
	p.init(priorityList)
	p.arcs = arcs
	return nil
}

func (p *referencePolicy) Reset() {}

func (p *referencePolicy) HasNext(state *SimState) bool {
	return len(state.Dispatchable()) > 0
}

func (p *referencePolicy) GetNext(state *SimState, now float64) (*domain.Task, error) {
	best, ok := p.pickFirstInPriority(state.Dispatchable())
	if !ok {
		return nil, fmt.Errorf("policy: GetNext called with nothing dispatchable")
	}
	return startTask(state, best, now)
}

func (p *referencePolicy) pickFirstInPriority(candidates []int) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	best := candidates[0]
	for _, id := range candidates[1:] {
		if p.less(id, best) {
			best = id
		}
	}
	return best, true
}

// optimizedDependencyPolicy restricts tie-break to the priority list, but
// among dispatchable tasks first prefers whichever would unblock the most
// direct successors once finished (SPEC_FULL §4.C, §9 Open Questions: ties
// broken by priority-list position, then task id — deterministic and
// independent of map iteration order).
type optimizedDependencyPolicy struct {
	priorityIndex
}

func (p *optimizedDependencyPolicy) Initialize(job *domain.Job, priorityList []int, arcs ArcSet) error {
	p.init(priorityList)
	return nil
}

func (p *optimizedDependencyPolicy) Reset() {}

func (p *optimizedDependencyPolicy) HasNext(state *SimState) bool {
	return len(state.Dispatchable()) > 0
}

func (p *optimizedDependencyPolicy) GetNext(state *SimState, now float64) (*domain.Task, error) {
	candidates := state.Dispatchable()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("policy: GetNext called with nothing dispatchable")
	}

	best := candidates[0]
	bestFrees := state.UnfinishedDirectSuccessors(best)
	for _, id := range candidates[1:] {
		frees := state.UnfinishedDirectSuccessors(id)
		switch {
		case frees > bestFrees:
			best, bestFrees = id, frees
		case frees == bestFrees && p.less(id, best):
			best, bestFrees = id, frees
		}
	}
	return startTask(state, best, now)
}
