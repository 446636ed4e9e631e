package simulate

import (
	"testing"

	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/srcpsperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTask(id int, mean float64, preds []int, slots ...*domain.RequiredResource) *domain.Task {
	return &domain.Task{
		ID:                id,
		Name:              "T",
		Duration:          domain.Distribution{Kind: domain.Fixed, Mean: mean},
		Predecessors:      preds,
		RequiredResources: slots,
	}
}

func slot(caps []string, n int) *domain.RequiredResource {
	return &domain.RequiredResource{RequiredCapabilities: caps, NumberRequired: n}
}

// S1 — Chain: 3 tasks T1->T2->T3, durations 10/20/30, one capacity-1
// resource required by all. Expected makespan 60, ordered [1,2,3].
func TestS1Chain(t *testing.T) {
	j := domain.NewJob()
	j.Capabilities["C"] = &domain.Capability{ID: "C"}
	j.Resources["R"] = &domain.Resource{ID: "R", MaxShareCount: 1, ProvidedCapabilities: []string{"C"}}
	j.AddTask(fixedTask(1, 10, nil, slot([]string{"C"}, 1)))
	j.AddTask(fixedTask(2, 20, []int{1}, slot([]string{"C"}, 1)))
	j.AddTask(fixedTask(3, 30, []int{2}, slot([]string{"C"}, 1)))
	require.NoError(t, j.Initialize())

	res, err := Run(j, Options{PolicyName: "Reference", PriorityList: []int{1, 2, 3}, Stochastic: false})
	require.NoError(t, err)
	assert.Equal(t, 60.0, res.TotalTime)
	require.Len(t, res.ExecutionHistory, 3)
	assert.Equal(t, []int{1, 2, 3}, ids(res))
}

// S2 — Diamond: T1 -> {T2, T3} -> T4, durations 5/10/20/5, two independent
// capacity-1 resources, T2/T3 on different resources. Expected makespan
// 5 + max(10,20) + 5 = 30.
func TestS2Diamond(t *testing.T) {
	j := domain.NewJob()
	j.Capabilities["CA"] = &domain.Capability{ID: "CA"}
	j.Capabilities["CB"] = &domain.Capability{ID: "CB"}
	j.Resources["RA"] = &domain.Resource{ID: "RA", MaxShareCount: 1, ProvidedCapabilities: []string{"CA"}}
	j.Resources["RB"] = &domain.Resource{ID: "RB", MaxShareCount: 1, ProvidedCapabilities: []string{"CB"}}
	j.AddTask(fixedTask(1, 5, nil))
	j.AddTask(fixedTask(2, 10, []int{1}, slot([]string{"CA"}, 1)))
	j.AddTask(fixedTask(3, 20, []int{1}, slot([]string{"CB"}, 1)))
	j.AddTask(fixedTask(4, 5, []int{2, 3}))
	require.NoError(t, j.Initialize())

	res, err := Run(j, Options{PolicyName: "Reference", PriorityList: []int{1, 2, 3, 4}, Stochastic: false})
	require.NoError(t, err)
	assert.Equal(t, 30.0, res.TotalTime)
}

// S3 — Shared bottleneck: T1, T2 independent, share a capacity-1 resource,
// durations 7 and 3. Both priority orders give makespan 10 but differ in
// execution order.
func TestS3SharedBottleneck(t *testing.T) {
	build := func() *domain.Job {
		j := domain.NewJob()
		j.Capabilities["C"] = &domain.Capability{ID: "C"}
		j.Resources["R"] = &domain.Resource{ID: "R", MaxShareCount: 1, ProvidedCapabilities: []string{"C"}}
		j.AddTask(fixedTask(1, 7, nil, slot([]string{"C"}, 1)))
		j.AddTask(fixedTask(2, 3, nil, slot([]string{"C"}, 1)))
		require.NoError(t, j.Initialize())
		return j
	}

	j1 := build()
	res1, err := Run(j1, Options{PolicyName: "Reference", PriorityList: []int{1, 2}, Stochastic: false})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res1.TotalTime)
	assert.Equal(t, []int{1, 2}, ids(res1))

	j2 := build()
	res2, err := Run(j2, Options{PolicyName: "Reference", PriorityList: []int{2, 1}, Stochastic: false})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res2.TotalTime)
	assert.Equal(t, []int{2, 1}, ids(res2))
}

// S4 — Capability routing: two resources provide capability C, two
// independent tasks needing C run concurrently.
func TestS4CapabilityRouting(t *testing.T) {
	j := domain.NewJob()
	j.Capabilities["C"] = &domain.Capability{ID: "C"}
	j.Resources["R1"] = &domain.Resource{ID: "R1", MaxShareCount: 1, ProvidedCapabilities: []string{"C"}}
	j.Resources["R2"] = &domain.Resource{ID: "R2", MaxShareCount: 1, ProvidedCapabilities: []string{"C"}}
	j.AddTask(fixedTask(1, 10, nil, slot([]string{"C"}, 1)))
	j.AddTask(fixedTask(2, 15, nil, slot([]string{"C"}, 1)))
	require.NoError(t, j.Initialize())

	res, err := Run(j, Options{PolicyName: "Reference", PriorityList: []int{1, 2}, Stochastic: false})
	require.NoError(t, err)
	assert.Equal(t, 15.0, res.TotalTime, "both tasks run concurrently on separate resources")
}

// S5 — Deadlock detection at initialize: a task needs two distinct
// resources but only one resource in the job provides the capability.
func TestS5ConstraintErrorAtInitialize(t *testing.T) {
	j := domain.NewJob()
	j.Capabilities["C"] = &domain.Capability{ID: "C"}
	j.Resources["R1"] = &domain.Resource{ID: "R1", MaxShareCount: 1, ProvidedCapabilities: []string{"C"}}
	j.AddTask(fixedTask(1, 10, nil, slot([]string{"C"}, 2)))

	err := j.Initialize()
	require.Error(t, err)
	var constraintErr *srcpsperr.ConstraintError
	assert.ErrorAs(t, err, &constraintErr)
}

func TestDeterminismAcrossIdenticalSeeds(t *testing.T) {
	build := func() *domain.Job {
		j := domain.NewJob()
		j.Capabilities["C"] = &domain.Capability{ID: "C"}
		j.Resources["R"] = &domain.Resource{ID: "R", MaxShareCount: 1, ProvidedCapabilities: []string{"C"}}
		j.AddTask(&domain.Task{ID: 1, Duration: domain.Distribution{Kind: domain.Normal, Mean: 10, Deviation: 3}, RequiredResources: []*domain.RequiredResource{slot([]string{"C"}, 1)}})
		j.AddTask(&domain.Task{ID: 2, Duration: domain.Distribution{Kind: domain.Normal, Mean: 5, Deviation: 2}, Predecessors: []int{1}, RequiredResources: []*domain.RequiredResource{slot([]string{"C"}, 1)}})
		require.NoError(t, j.Initialize())
		return j
	}

	opts := Options{PolicyName: "RBRS", PriorityList: []int{1, 2}, Stochastic: true, Seed: 7}
	r1, err := Run(build(), opts)
	require.NoError(t, err)
	r2, err := Run(build(), opts)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestUnsatisfiableResourceDemandDeadlocks(t *testing.T) {
	j := domain.NewJob()
	j.Capabilities["C"] = &domain.Capability{ID: "C"}
	j.Resources["R1"] = &domain.Resource{ID: "R1", MaxShareCount: 1, ProvidedCapabilities: []string{"C"}}
	// Initialize validates each slot independently against the pool of
	// candidate resources, so a single task with two slots each requiring
	// one instance of C passes Initialize (one candidate satisfies
	// number_required=1, checked per slot). But broker.pickAssignment binds
	// a task's slots atomically and excludes resources already taken by an
	// earlier slot of the same task, so the two slots can never be
	// simultaneously satisfied from the single resource R1 provides. The
	// task never binds, nothing else exists to ever release a resource, and
	// the event queue empties with it still unfinished: a genuine deadlock,
	// not the false one this test previously asserted (two independent
	// tasks simply serialize under all-or-nothing binding).
	j.AddTask(fixedTask(1, 10, nil, slot([]string{"C"}, 1), slot([]string{"C"}, 1)))
	require.NoError(t, j.Initialize())

	_, err := Run(j, Options{PolicyName: "Reference", PriorityList: []int{1}, Stochastic: false})
	require.Error(t, err)
	var deadlock *srcpsperr.DeadlockError
	assert.ErrorAs(t, err, &deadlock)
}

func ids(res *SimulationResult) []int {
	out := make([]int, len(res.ExecutionHistory))
	for i, r := range res.ExecutionHistory {
		out[i] = r.ID
	}
	return out
}
