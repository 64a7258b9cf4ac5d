// Package qos implements the transmit scheduler of spec.md §4.E: a priority
// queue with FIFO-within-priority ordering, retry-with-backoff, per-frame
// reply correlation, and duty-cycle-based deprecation of chronically
// unanswered senders.
package qos

import (
	"container/heap"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/command"
)

type item struct {
	cmd   *command.Command
	index int
}

// priorityQueue is a container/heap.Interface ordered by (priority, enqueue
// time), giving FIFO order within a priority tier.
type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cmd.Priority != pq[j].cmd.Priority {
		return pq[i].cmd.Priority < pq[j].cmd.Priority
	}
	return pq[i].cmd.EnqueuedAt().Before(pq[j].cmd.EnqueuedAt())
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}

func (pq *priorityQueue) Push(x any) {
	it := x.(*item)
	it.index = len(*pq)
	*pq = append(*pq, it)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[:n-1]
	return it
}

// Queue is a thread-unsafe priority queue; all access is expected to be
// serialised by the single-threaded send engine (spec.md §5).
type Queue struct {
	pq  priorityQueue
	now func() time.Time
}

// NewQueue builds an empty send queue. now is injectable for deterministic
// tests.
func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	q := &Queue{now: now}
	heap.Init(&q.pq)
	return q
}

// Enqueue adds cmd to the queue, stamping its enqueue time if not already
// set (a retry re-enqueue keeps its original relative FIFO slot by priority
// only, not by original time, since it is a fresh attempt).
func (q *Queue) Enqueue(cmd *command.Command) {
	cmd.MarkEnqueued(q.now())
	heap.Push(&q.pq, &item{cmd: cmd})
}

// Pop removes and returns the highest-priority, earliest-enqueued command,
// or nil if the queue is empty.
func (q *Queue) Pop() *command.Command {
	if q.pq.Len() == 0 {
		return nil
	}
	it := heap.Pop(&q.pq).(*item)
	return it.cmd
}

// Len reports the number of pending commands.
func (q *Queue) Len() int { return q.pq.Len() }
