package policy

import (
	"fmt"
	"math/rand"

	"github.com/srcpsp/deepthought/pkg/domain"
)

func init() {
	Register("RBRS", func() Policy { return &rbrsPolicy{} })
}

// Seeder is implemented by policies whose tie-break draws on an RNG. The
// Monte Carlo harness (SPEC_FULL §4.G) calls SetSeed with a seed derived
// deterministically from (generation, individual, replication) before
// Initialize, so RBRS runs remain reproducible.
type Seeder interface {
	SetSeed(seed int64)
}

// rbrsPolicy is Resource-Based Random Sampling: among dispatchable tasks,
// each is weighted by its resource slack (how much spare share-count its
// bound-candidate resources have relative to capacity) and one is drawn by
// weighted random sampling. Ties among zero-slack (fully exclusive, single
// instance) tasks fall back to uniform weight.
type rbrsPolicy struct {
	priorityIndex
	rng *rand.Rand
}

func (p *rbrsPolicy) SetSeed(seed int64) {
	p.rng = rand.New(rand.NewSource(seed))
}

func (p *rbrsPolicy) Initialize(job *domain.Job, priorityList []int, arcs ArcSet) error {
	p.init(priorityList)
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(0))
	}
	return nil
}

func (p *rbrsPolicy) Reset() {}

func (p *rbrsPolicy) HasNext(state *SimState) bool {
	return len(state.Dispatchable()) > 0
}

func (p *rbrsPolicy) GetNext(state *SimState, now float64) (*domain.Task, error) {
	candidates := state.Dispatchable()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("policy: GetNext called with nothing dispatchable")
	}

	weights := make([]float64, len(candidates))
	total := 0.0
	for i, id := range candidates {
		w := rbrsSlack(state, id) + 0.01 // every task keeps nonzero weight
		weights[i] = w
		total += w
	}

	r := p.rng.Float64() * total
	chosen := candidates[len(candidates)-1]
	acc := 0.0
	for i, id := range candidates {
		acc += weights[i]
		if r <= acc {
			chosen = id
			break
		}
	}
	return startTask(state, chosen, now)
}

// rbrsSlack averages, over a task's required-resource slots, the fraction
// of spare share-count among its fulfilled-by resources that are currently
// available. Unbounded resources contribute full slack (1.0).
func rbrsSlack(state *SimState, taskID int) float64 {
	task := state.Job.Tasks[taskID]
	if len(task.RequiredResources) == 0 {
		return 1.0
	}
	total := 0.0
	for _, slot := range task.RequiredResources {
		best := 0.0
		for _, r := range slot.FulfilledBy {
			if r.Unbounded() {
				best = 1.0
				break
			}
			slack := float64(r.MaxShareCount-state.Broker.HolderCount(r.ID)) / float64(r.MaxShareCount)
			if slack > best {
				best = slack
			}
		}
		total += best
	}
	return total / float64(len(task.RequiredResources))
}
