package scheduler

import (
	"container/heap"

	"github.com/chunkgrid/chunkgrid/model/task"
)

// readyQueue orders ready tasks by priority (higher first), then by spawn
// order for determinism.
type readyQueue struct {
	items []*node
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{}
	heap.Init(q)
	return q
}

func (q *readyQueue) Len() int { return len(q.items) }

func (q *readyQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.spawnSeq < b.spawnSeq
}

func (q *readyQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *readyQueue) Push(x any) {
	q.items = append(q.items, x.(*node))
}

func (q *readyQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

func (q *readyQueue) push(n *node) { heap.Push(q, n) }

// pop returns the next runnable node, discarding cancelled entries.
func (q *readyQueue) pop() *node {
	for q.Len() > 0 {
		n := heap.Pop(q).(*node)
		if n.cancelled || n.state != task.StateReady {
			continue
		}
		return n
	}
	return nil
}

// reorder re-establishes heap invariants after a priority change.
func (q *readyQueue) reorder() { heap.Init(q) }
