// Package broker matches a task's RequiredResource slots to concrete
// resource instances and accounts for share-count limits. It is adapted
// from the teacher's ConcurrentNodeIndex / BloomConstraintIndex idea
// (pkg/scheduler/optimized_scheduler.go): there, a node index with O(1)
// capability lookups decides which node can take a unit of work; here, a
// per-resource holder counter decides which resource instances can take a
// task's reservation, all-or-nothing across the task's slots.
package broker

import (
	"fmt"
	"sort"

	"github.com/srcpsp/deepthought/pkg/domain"
)

// Strategy selects which of a slot's candidate resources to try first.
// Reference is the spec's default: a stable first-fit over FulfilledBy,
// which Job.Initialize fills in ascending resource-id order. LoadAware
// re-sorts candidates by current load (fewer current holders first) to
// spread load rather than pack it; simulate.Run always uses Reference, and
// no policy selects LoadAware.
type Strategy int

const (
	Reference Strategy = iota
	LoadAware
)

// Broker owns the only mutable shared state within one simulation run: the
// per-resource holder counters. It is not safe for concurrent use — the
// simulator is single-threaded per SPEC_FULL §5, and each Monte Carlo
// worker owns its own Broker over its own RuntimeView.
type Broker struct {
	holders  map[string]int // resource id -> current holder count
	strategy Strategy
}

// New returns a broker with all counters at zero.
func New(strategy Strategy) *Broker {
	return &Broker{holders: make(map[string]int), strategy: strategy}
}

// Reset zeroes every counter, called between simulation runs alongside
// Job.ResetRuntime.
func (b *Broker) Reset() {
	for k := range b.holders {
		delete(b.holders, k)
	}
}

// Available reports whether r has spare capacity: an unbounded resource
// (MaxShareCount == 0) is always available; otherwise the current holder
// count must be strictly below MaxShareCount.
func (b *Broker) Available(r *domain.Resource) bool {
	if r.Unbounded() {
		return true
	}
	return b.holders[r.ID] < r.MaxShareCount
}

// CanBind reports whether every RequiredResource slot of task can currently
// be satisfied, without mutating broker state.
func (b *Broker) CanBind(task *domain.Task) bool {
	_, ok := b.pickAssignment(task)
	return ok
}

// Bind reserves resources for every slot of task, atomically: either every
// slot succeeds and Task.UsedResources/holder counters are updated, or
// nothing changes. Matching is deterministic given the same broker state and
// strategy (SPEC_FULL §4.B).
func (b *Broker) Bind(task *domain.Task) error {
	picked, ok := b.pickAssignment(task)
	if !ok {
		return fmt.Errorf("broker: cannot bind task %d: insufficient available resources", task.ID)
	}
	used := make([]string, 0, len(picked))
	for _, rid := range picked {
		b.holders[rid]++
		used = append(used, rid)
	}
	task.UsedResources = used
	return nil
}

// Release returns every resource task held back to the broker. Safe to call
// even if task held nothing.
func (b *Broker) Release(task *domain.Task) {
	for _, rid := range task.UsedResources {
		if b.holders[rid] > 0 {
			b.holders[rid]--
		}
	}
	task.UsedResources = nil
}

// pickAssignment computes, without mutating state, the set of resource ids
// that would be bound for task's slots under the current holder counts. It
// returns ok=false if any slot cannot be fully satisfied. Resources already
// picked for an earlier slot in the same task are excluded from later
// slots' candidates, honoring "number_required distinct resource instances"
// even when two slots could otherwise draw from overlapping FulfilledBy
// sets.
func (b *Broker) pickAssignment(task *domain.Task) ([]string, bool) {
	taken := make(map[string]struct{})
	var picked []string

	for _, slot := range task.RequiredResources {
		candidates := make([]*domain.Resource, len(slot.FulfilledBy))
		copy(candidates, slot.FulfilledBy)
		if b.strategy == LoadAware {
			sort.SliceStable(candidates, func(i, k int) bool {
				return b.holders[candidates[i].ID] < b.holders[candidates[k].ID]
			})
		}

		got := 0
		for _, r := range candidates {
			if _, already := taken[r.ID]; already {
				continue
			}
			if !b.Available(r) {
				continue
			}
			taken[r.ID] = struct{}{}
			picked = append(picked, r.ID)
			got++
			if got == slot.NumberRequired {
				break
			}
		}
		if got < slot.NumberRequired {
			return nil, false
		}
	}
	return picked, true
}

// HolderCount reports the current number of holders of resource id, used by
// RBRS's slack-weighted sampling to read broker load without mutating it.
func (b *Broker) HolderCount(id string) int {
	return b.holders[id]
}
