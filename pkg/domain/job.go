package domain

import (
	"sort"

	"github.com/srcpsp/deepthought/pkg/srcpsperr"
)

// Schedule holds the opaque artifacts an optimizer produces for a job: a
// priority list (permutation of task ids) and an arc set of additional
// precedence edges. Either may be nil until the optimizer has run.
type Schedule struct {
	PriorityList []int
	Arcs         [][2]int // additional precedence edges (u -> v)
}

// Job is the root of the domain model: unique-keyed arenas of capabilities,
// resources and tasks, plus optional schedule artifacts. Representation
// follows the "arena + indices" design note (SPEC_FULL §9): everything
// outside Job refers to capabilities/resources/tasks by id, never by a
// live pointer that could form a reference cycle.
type Job struct {
	Capabilities map[string]*Capability `json:"capabilities"`
	Resources    map[string]*Resource   `json:"resources"`
	Tasks        map[int]*Task          `json:"tasks"`

	AlreadyInitialized bool      `json:"already_initialized"`
	Schedule           *Schedule `json:"schedule,omitempty"`

	// taskOrder is the declaration order of task ids, used wherever a
	// deterministic iteration over Tasks is required (map iteration order
	// in Go is randomized).
	taskOrder []int
}

// NewJob returns an empty job with initialized arenas.
func NewJob() *Job {
	return &Job{
		Capabilities: make(map[string]*Capability),
		Resources:    make(map[string]*Resource),
		Tasks:        make(map[int]*Task),
	}
}

// AddTask registers a task and records its declaration order.
func (j *Job) AddTask(t *Task) {
	j.Tasks[t.ID] = t
	j.taskOrder = append(j.taskOrder, t.ID)
}

// TaskOrder returns task ids in declaration order.
func (j *Job) TaskOrder() []int {
	out := make([]int, len(j.taskOrder))
	copy(out, j.taskOrder)
	return out
}

// SortedTaskIDs returns all task ids in ascending order, used by components
// that need a canonical (not merely declared) order, e.g. candidate-arc
// enumeration in ArcGA.
func (j *Job) SortedTaskIDs() []int {
	ids := make([]int, 0, len(j.Tasks))
	for id := range j.Tasks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Initialize resolves RequiredResource.FulfilledBy cross-links, derives
// Resource.RequiredBy by scanning tasks, and validates the invariants from
// SPEC_FULL §3. It must be called once before any simulation; subsequent
// calls are no-ops if AlreadyInitialized is already true, mirroring the
// loader contract in SPEC_FULL §6.
func (j *Job) Initialize() error {
	if j.AlreadyInitialized {
		return nil
	}

	requiredBy := make(map[string]map[int]struct{})

	order := j.TaskOrder()
	if len(order) != len(j.Tasks) {
		// Tasks decoded from JSON bypass AddTask and carry no declaration order.
		order = j.SortedTaskIDs()
	}
	for _, taskID := range order {
		task := j.Tasks[taskID]
		for slotIdx, slot := range task.RequiredResources {
			fulfilled := j.resourcesProviding(slot.RequiredCapabilities)
			if len(fulfilled) < slot.NumberRequired {
				return srcpsperr.NewConstraintError(task.ID, slotIdx,
					"fewer candidate resources than number_required")
			}
			slot.FulfilledBy = fulfilled
			for _, r := range fulfilled {
				if requiredBy[r.ID] == nil {
					requiredBy[r.ID] = make(map[int]struct{})
				}
				requiredBy[r.ID][task.ID] = struct{}{}
			}
		}
	}

	for _, rid := range j.sortedResourceIDs() {
		r := j.Resources[rid]
		ids := make([]int, 0, len(requiredBy[rid]))
		for tid := range requiredBy[rid] {
			ids = append(ids, tid)
		}
		sort.Ints(ids)
		r.RequiredBy = ids
	}

	j.AlreadyInitialized = true
	return nil
}

// resourcesProviding returns, in ascending resource-id order, every
// resource that provides all of caps. Resources is a map, so the order in
// which the job declared its resources is not kept.
func (j *Job) resourcesProviding(caps []string) []*Resource {
	var out []*Resource
	for _, rid := range j.sortedResourceIDs() {
		r := j.Resources[rid]
		if r.ProvidesAll(caps) {
			out = append(out, r)
		}
	}
	return out
}

func (j *Job) sortedResourceIDs() []string {
	ids := make([]string, 0, len(j.Resources))
	for id := range j.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResetRuntime clears per-run scratch fields on every task, required before
// each simulation run (SPEC_FULL §3 Lifecycle, §5).
func (j *Job) ResetRuntime() {
	for _, t := range j.Tasks {
		t.ResetRuntime()
	}
}

// Clone returns a deep copy of the job's task arena (runtime scratch
// included, except UsedResources, which each cloned task starts without)
// while sharing the immutable capability/resource arenas by
// reference. This is the RuntimeView a Monte Carlo worker owns per SPEC_FULL
// §5: runtime scratch never leaks across parallel fitness evaluations.
func (j *Job) Clone() *Job {
	cp := &Job{
		Capabilities:       j.Capabilities, // immutable, shared
		Resources:          j.Resources,    // immutable, shared (RequiredBy fixed after Initialize)
		Tasks:              make(map[int]*Task, len(j.Tasks)),
		AlreadyInitialized: j.AlreadyInitialized,
		taskOrder:          append([]int(nil), j.taskOrder...),
	}
	if j.Schedule != nil {
		sched := *j.Schedule
		sched.PriorityList = append([]int(nil), j.Schedule.PriorityList...)
		sched.Arcs = append([][2]int(nil), j.Schedule.Arcs...)
		cp.Schedule = &sched
	}
	for id, t := range j.Tasks {
		cp.Tasks[id] = t.Clone()
	}
	return cp
}
