package policy

import (
	"fmt"

	"github.com/srcpsp/deepthought/pkg/domain"
)

func init() {
	Register("PPPolicies", func() Policy { return &ppPolicy{} })
	Register("ABPolicy", func() Policy { return &abPolicy{} })
	Register("JFPol", func() Policy { return &jfPolicy{} })
}

// criticalTail computes, for every task, the length of the longest
// remaining path from it to a sink (in mean-duration time units) over the
// static DAG plus the arcs overlay. Computed once at Initialize from the
// job's declared durations, since the static graph and arcs do not change
// during a run — only a deterministic approximation of "remaining tail",
// not a function of the stochastic sample actually drawn.
func criticalTail(job *domain.Job, graph *domain.Graph, arcs ArcSet) map[int]float64 {
	extraSuccs := make(map[int][]int)
	for _, e := range arcs {
		extraSuccs[e[0]] = append(extraSuccs[e[0]], e[1])
	}

	nodes := graph.Nodes()
	tail := make(map[int]float64, len(nodes))
	// Sweep in reverse id order, repeating until no tail changes: ids (and
	// overlay arcs) need not follow topological order, and a path visits at
	// most len(nodes) tasks, so len(nodes) sweeps suffice.
	changed := true
	for pass := 0; changed && pass < len(nodes); pass++ {
		changed = false
		for i := len(nodes) - 1; i >= 0; i-- {
			id := nodes[i]
			dur := job.Tasks[id].Duration.Mean
			best := 0.0
			for _, s := range graph.Successors(id) {
				if tail[s] > best {
					best = tail[s]
				}
			}
			for _, s := range extraSuccs[id] {
				if tail[s] > best {
					best = tail[s]
				}
			}
			if v := dur + best; v != tail[id] {
				tail[id] = v
				changed = true
			}
		}
	}
	return tail
}

// pickByScoreThenPriority selects the candidate with the highest score,
// breaking ties by priority-list position then task id for determinism.
func pickByScoreThenPriority(candidates []int, pi *priorityIndex, score func(int) float64) int {
	best := candidates[0]
	bestScore := score(best)
	for _, id := range candidates[1:] {
		s := score(id)
		switch {
		case s > bestScore:
			best, bestScore = id, s
		case s == bestScore && pi.less(id, best):
			best, bestScore = id, s
		}
	}
	return best
}

// ppPolicy ("parallel-processing priorities") uses a one-step look-ahead:
// among dispatchable tasks, it ranks
// first by how many of the other currently-ready tasks would remain
// dispatchable if this one were started now (so it avoids a task that would
// singularly starve the ready set), then by critical-path tail length, then
// by priority-list position. This is PP's distinguishing trait versus
// abPolicy below, which ranks by tail length alone and so can pick a
// resource-hungry task that blocks everything else even when a
// similarly-valuable alternative would not.
type ppPolicy struct {
	priorityIndex
	tail map[int]float64
}

func (p *ppPolicy) Initialize(job *domain.Job, priorityList []int, arcs ArcSet) error {
	p.init(priorityList)
	p.tail = criticalTail(job, domain.BuildGraph(job), arcs)
	return nil
}

func (p *ppPolicy) Reset() {}

func (p *ppPolicy) HasNext(state *SimState) bool {
	return len(state.Dispatchable()) > 0
}

func (p *ppPolicy) GetNext(state *SimState, now float64) (*domain.Task, error) {
	candidates := state.Dispatchable()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("policy: GetNext called with nothing dispatchable")
	}

	best := candidates[0]
	bestContinuations := continuations(state, best)
	bestTail := p.tail[best]
	for _, id := range candidates[1:] {
		cont := continuations(state, id)
		tail := p.tail[id]
		switch {
		case cont > bestContinuations:
			best, bestContinuations, bestTail = id, cont, tail
		case cont == bestContinuations && tail > bestTail:
			best, bestContinuations, bestTail = id, cont, tail
		case cont == bestContinuations && tail == bestTail && p.less(id, best):
			best, bestContinuations, bestTail = id, cont, tail
		}
	}
	return startTask(state, best, now)
}

// continuations counts how many of the other currently-ready tasks would
// still be dispatchable immediately after candidate is bound. It binds
// candidate against the real broker to get an exact answer (not an
// approximation of resource contention) and unconditionally releases it
// again before returning, so the broker is left exactly as it found it.
func continuations(state *SimState, candidate int) int {
	task := state.Job.Tasks[candidate]
	if err := state.Broker.Bind(task); err != nil {
		return 0
	}
	defer state.Broker.Release(task)

	count := 0
	for _, id := range state.Ready() {
		if id == candidate {
			continue
		}
		if state.Broker.CanBind(state.Job.Tasks[id]) {
			count++
		}
	}
	return count
}

// abPolicy ("activity-based") is PP's pure form: prefer the dispatchable
// task with the longest remaining critical-path tail, full stop, no
// look-ahead.
type abPolicy struct {
	priorityIndex
	tail map[int]float64
}

func (p *abPolicy) Initialize(job *domain.Job, priorityList []int, arcs ArcSet) error {
	p.init(priorityList)
	p.tail = criticalTail(job, domain.BuildGraph(job), arcs)
	return nil
}

func (p *abPolicy) Reset() {}

func (p *abPolicy) HasNext(state *SimState) bool {
	return len(state.Dispatchable()) > 0
}

func (p *abPolicy) GetNext(state *SimState, now float64) (*domain.Task, error) {
	candidates := state.Dispatchable()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("policy: GetNext called with nothing dispatchable")
	}
	best := pickByScoreThenPriority(candidates, &p.priorityIndex, func(id int) float64 { return p.tail[id] })
	return startTask(state, best, now)
}

// jfPolicy ("justified-first") ranks like ABPolicy. It marks every task it
// dispatches as justified and prefers candidates not yet justified, falling
// back to the AB tail score among the rest. A task is dispatched at most
// once per run, so every candidate is still unjustified and its picks equal
// ABPolicy's; broker slack is not consulted.
type jfPolicy struct {
	priorityIndex
	tail      map[int]float64
	justified map[int]bool
}

func (p *jfPolicy) Initialize(job *domain.Job, priorityList []int, arcs ArcSet) error {
	p.init(priorityList)
	p.tail = criticalTail(job, domain.BuildGraph(job), arcs)
	p.justified = make(map[int]bool)
	return nil
}

func (p *jfPolicy) Reset() {
	p.justified = make(map[int]bool)
}

func (p *jfPolicy) HasNext(state *SimState) bool {
	return len(state.Dispatchable()) > 0
}

func (p *jfPolicy) GetNext(state *SimState, now float64) (*domain.Task, error) {
	candidates := state.Dispatchable()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("policy: GetNext called with nothing dispatchable")
	}

	var unjustified []int
	for _, id := range candidates {
		if !p.justified[id] {
			unjustified = append(unjustified, id)
		}
	}
	pool := candidates
	if len(unjustified) > 0 {
		pool = unjustified
	}

	best := pickByScoreThenPriority(pool, &p.priorityIndex, func(id int) float64 { return p.tail[id] })
	p.justified[best] = true
	return startTask(state, best, now)
}
