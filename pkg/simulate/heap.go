package simulate

import "container/heap"

// finishEvent is a scheduled finish(T, t) event. seq is the insertion
// order, used as the tie-break so that two events with identical finish
// times always pop in the order they were enqueued (SPEC_FULL §5 ordering
// guarantee).
type finishEvent struct {
	finishTime float64
	seq        int64
	taskID     int
}

// eventQueue implements container/heap.Interface as a min-heap ordered by
// (finishTime ASC, seq ASC), adapted from the teacher's
// OptimizedPriorityQueue (a max-heap keyed by scheduling priority) to a
// min-heap keyed by simulated time.
type eventQueue []finishEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].finishTime != q[j].finishTime {
		return q[i].finishTime < q[j].finishTime
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x interface{}) {
	*q = append(*q, x.(finishEvent))
}

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*eventQueue)(nil)
