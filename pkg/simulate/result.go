// Package simulate drives the discrete-event simulation loop described in
// SPEC_FULL §4.D: a fill/advance loop over a binary min-heap of finish
// events, invoking the policy layer to dispatch and the broker to bind and
// release resources. Event ordering mirrors the teacher's
// OptimizedPriorityQueue (pkg/scheduler/optimized_scheduler.go), adapted
// from a max-heap keyed by scheduling priority to a min-heap keyed by
// (finish time, insertion order).
package simulate

import "github.com/srcpsp/deepthought/pkg/domain"

// TaskRecord is one entry of a SimulationResult's execution history.
type TaskRecord struct {
	ID            int      `json:"id"`
	Name          string   `json:"name"`
	Started       float64  `json:"started"`
	Finished      float64  `json:"finished"`
	ExecutionTime float64  `json:"execution_time"`
	UsedResources []string `json:"used_resources"`
}

// SimulationResult is the reporter contract's output (SPEC_FULL §6):
// makespan plus the ordered execution history.
type SimulationResult struct {
	TotalTime        float64      `json:"total_time"`
	ExecutionHistory []TaskRecord `json:"execution_history"`
}

func newTaskRecord(t *domain.Task) TaskRecord {
	return TaskRecord{
		ID:            t.ID,
		Name:          t.Name,
		Started:       t.Started,
		Finished:      t.Finished,
		ExecutionTime: t.Finished - t.Started,
		UsedResources: append([]string(nil), t.UsedResources...),
	}
}
