package domain

// Task is a work item identified by an integer id. Predecessors are stored
// as task ids (implicit edges of the static DAG); RequiredResources are
// demand slots resolved against the job's resource arena at Initialize.
//
// Started/Finished/UsedResources/StartedFlag/FinishedFlag are runtime
// scratch fields: immutable after loading except that the simulator resets
// them between runs (SPEC_FULL §3 Lifecycle).
type Task struct {
	ID                int                 `json:"id"`
	Name              string              `json:"name"`
	Duration          Distribution        `json:"duration"`
	RequiredResources []*RequiredResource `json:"required_resources"`
	Predecessors      []int               `json:"predecessors"`

	// Runtime scratch, reset by ResetRuntime.
	Started      float64  `json:"-"`
	Finished     float64  `json:"-"`
	UsedResources []string `json:"-"` // resource ids held while running
	StartedFlag  bool     `json:"-"`
	FinishedFlag bool     `json:"-"`
}

// ResetRuntime clears the per-run scratch fields. Called by the simulator at
// the start of every run so state never leaks between simulations (SPEC_FULL
// §5).
func (t *Task) ResetRuntime() {
	t.Started = 0
	t.Finished = 0
	t.UsedResources = nil
	t.StartedFlag = false
	t.FinishedFlag = false
}

// Clone returns a deep copy of the task suitable for a per-worker
// RuntimeView; the static fields (Duration, RequiredResources,
// Predecessors) are shared by reference since they never mutate after load.
func (t *Task) Clone() *Task {
	cp := *t
	cp.UsedResources = nil
	return &cp
}
