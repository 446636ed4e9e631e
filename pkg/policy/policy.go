package policy

import (
	"fmt"
	"sort"

	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/srcpsperr"
)

// Policy is the dispatch interface every scheduling rule implements
// (SPEC_FULL §4.C, §9 "polymorphism over policies"). Concrete variants
// differ only in tie-break among the dispatchable set.
type Policy interface {
	// Initialize binds the policy to the job, a priority list (permutation
	// of task ids), and an arcs overlay before the first HasNext/GetNext
	// call (SPEC_FULL §9: "initialize(job, list, arcs)"). Policies that
	// need static-graph derived data (e.g. critical-path tails) compute it
	// here, once per run, from job's predecessors and arcs — never from
	// runtime scratch fields, which are still unset at this point.
	Initialize(job *domain.Job, priorityList []int, arcs ArcSet) error
	// Reset clears any policy-local bookkeeping between simulation runs;
	// it does not touch SimState, which the simulator resets separately.
	Reset()
	// HasNext reports whether at least one task is both ready and
	// dispatchable under state.
	HasNext(state *SimState) bool
	// GetNext selects one dispatchable task per the policy's tie-break,
	// marks it started at time now in state.Job, and reserves its
	// resources via state.Broker. Returns an error if called with nothing
	// dispatchable.
	GetNext(state *SimState, now float64) (*domain.Task, error)
}

// Factory constructs a fresh Policy instance. Policies are stateful
// (priority position index, RNG) so each simulation run gets its own.
type Factory func() Policy

var registry = map[string]Factory{}

// Register adds a named policy factory. Called from each policy's file via
// init, mirroring the teacher's strategy-registry pattern
// (pkg/loadbalancer).
func Register(name string, f Factory) {
	registry[name] = f
}

// New constructs the named policy, or a ConfigError if name is unknown.
func New(name string) (Policy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, &srcpsperr.ConfigError{Option: "policy", Reason: fmt.Sprintf("unknown policy %q", name)}
	}
	return f(), nil
}

// Names returns every registered policy name, sorted, for CLI/help output.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// startTask marks task started in state and reserves its resources; shared
// by every policy's GetNext so the broker/task bookkeeping is uniform.
// Finishing a task (releasing its resources) is the simulator's job, not
// the policy's: the simulator owns the event clock and calls
// state.Broker.Release directly when a finish event is popped
// (SPEC_FULL §4.D).
func startTask(state *SimState, taskID int, startTime float64) (*domain.Task, error) {
	t := state.Job.Tasks[taskID]
	if err := state.Broker.Bind(t); err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	t.StartedFlag = true
	t.Started = startTime
	return t, nil
}
