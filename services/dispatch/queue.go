package dispatch

import (
	"container/heap"
	"time"
)

// queueItem is one scheduled attempt: a job id and the time it becomes due.
type queueItem struct {
	jobID string
	at    time.Time
	index int
}

// dueQueue is a min-heap ordered by next-attempt time. The dispatcher's drain
// loop peeks the earliest item and sleeps until it is due; no recursion, no
// polling.
type dueQueue []*queueItem

func (q dueQueue) Len() int { return len(q) }

func (q dueQueue) Less(i, j int) bool {
	return q[i].at.Before(q[j].at)
}

func (q dueQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *dueQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *dueQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

func (q dueQueue) peek() *queueItem {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

var _ heap.Interface = (*dueQueue)(nil)
