package simulate

import (
	"container/heap"
	"fmt"
	"math/rand"
	"sort"

	"github.com/srcpsp/deepthought/pkg/broker"
	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/policy"
	"github.com/srcpsp/deepthought/pkg/srcpsperr"
)

// Options parameterizes one simulation run.
type Options struct {
	PolicyName   string
	PriorityList []int // nil means job.SortedTaskIDs() order
	Arcs         policy.ArcSet
	Seed         int64
	// Stochastic, when false, forces every task's sampled duration to its
	// distribution's Mean (FIXED semantics for every kind), per SPEC_FULL
	// §6.3's `stochastic` config option.
	Stochastic bool
}

// Run executes the fill/advance discrete-event loop of SPEC_FULL §4.D
// against job, which must already have Initialize called on it. job's
// runtime scratch is reset at the start of the run and left populated (with
// Started/Finished) at the end, mirroring the teacher's "reset, then run,
// then inspect" lifecycle. UsedResources is cleared as each task's
// resources are released; the execution history keeps a copy.
func Run(job *domain.Job, opts Options) (*SimulationResult, error) {
	job.ResetRuntime()
	graph := domain.BuildGraph(job)

	priorityList := opts.PriorityList
	if priorityList == nil {
		priorityList = job.SortedTaskIDs()
	}

	pol, err := policy.New(opts.PolicyName)
	if err != nil {
		return nil, err
	}
	if seeder, ok := pol.(policy.Seeder); ok {
		seeder.SetSeed(opts.Seed)
	}
	if err := pol.Initialize(job, priorityList, opts.Arcs); err != nil {
		return nil, fmt.Errorf("simulate: policy initialize: %w", err)
	}

	b := broker.New(broker.Reference)
	state := policy.NewSimState(job, graph, opts.Arcs, b)
	rng := rand.New(rand.NewSource(opts.Seed))

	queue := &eventQueue{}
	heap.Init(queue)

	now := 0.0
	var seq int64
	history := make([]TaskRecord, 0, len(job.Tasks))

	dispatch := func() error {
		for pol.HasNext(state) {
			task, err := pol.GetNext(state, now)
			if err != nil {
				return fmt.Errorf("simulate: get_next: %w", err)
			}
			dur := sampleDuration(task, rng, opts.Stochastic)
			heap.Push(queue, finishEvent{finishTime: now + dur, seq: seq, taskID: task.ID})
			seq++
		}
		return nil
	}

	if err := dispatch(); err != nil {
		return nil, err
	}

	for queue.Len() > 0 {
		ev := heap.Pop(queue).(finishEvent)
		now = ev.finishTime
		task := job.Tasks[ev.taskID]
		task.Finished = now
		task.FinishedFlag = true
		history = append(history, newTaskRecord(task))
		b.Release(task)

		if err := dispatch(); err != nil {
			return nil, err
		}
	}

	if remaining := unfinished(job); len(remaining) > 0 {
		return nil, srcpsperr.NewDeadlockError(remaining, "event queue emptied with tasks still undispatched or unfinished")
	}

	makespan := 0.0
	for _, rec := range history {
		if rec.Finished > makespan {
			makespan = rec.Finished
		}
	}

	return &SimulationResult{TotalTime: makespan, ExecutionHistory: history}, nil
}

func sampleDuration(task *domain.Task, rng *rand.Rand, stochastic bool) float64 {
	if !stochastic {
		return task.Duration.Mean
	}
	return task.Duration.Sample(rng)
}

func unfinished(job *domain.Job) []int {
	var out []int
	for _, id := range job.SortedTaskIDs() {
		if !job.Tasks[id].FinishedFlag {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
