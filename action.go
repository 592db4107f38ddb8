package miniac

import "sync/atomic"

// action is a unit of work executed on the dispatch thread.
type action func()

// scheduledEntry is a pending timer action waiting in the scheduled queue.
//
// precedingActionCount pins the entry to the FIFO queue's position at the
// moment it was scheduled: the entry is only eligible to fire once that many
// immediate actions have already been drained. Without this, an action
// scheduled with a zero or negative delay from inside an already-running
// action could jump ahead of actions that were enqueued earlier in the same
// dispatch turn, breaking the "actions run in the order observed" guarantee.
//
// cancelled is an atomic.Bool, not a plain bool, because Cancellable.Cancel
// is documented as safe to call from any goroutine while popReadyScheduled
// reads it under queueMu on the dispatch thread.
type scheduledEntry struct {
	fireAt               monotonic
	seq                  uint64
	precedingActionCount uint64
	action               action
	cancelled            atomic.Bool
	period               monotonic // 0 for one-shot
}

type scheduledQueue []*scheduledEntry

func (q scheduledQueue) Len() int { return len(q) }

func (q scheduledQueue) Less(i, j int) bool {
	if q[i].fireAt != q[j].fireAt {
		return q[i].fireAt < q[j].fireAt
	}
	return q[i].seq < q[j].seq
}

func (q scheduledQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *scheduledQueue) Push(x any) { *q = append(*q, x.(*scheduledEntry)) }

func (q *scheduledQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

func (q *scheduledQueue) peek() *scheduledEntry {
	if len(*q) == 0 {
		return nil
	}
	return (*q)[0]
}

// Cancellable is a handle to withdraw a scheduled action or an active
// subscription before it would otherwise complete.
type Cancellable interface {
	// Cancel withdraws the underlying action or subscription. It is safe to
	// call from any thread and safe to call more than once.
	Cancel()
}

type cancelFunc func()

func (f cancelFunc) Cancel() { f() }

// noopCancellable is returned where a Cancellable is required but the
// operation already completed or never needed cancellation.
var noopCancellable Cancellable = cancelFunc(func() {})
