package jsrt

import (
	"container/heap"
	"time"

	"github.com/dop251/goja"
)

// timer is one pending setTimeout callback.
type timer struct {
	fn   goja.Callable
	args []goja.Value
	due  time.Duration
	id   int64
}

// timerQueue orders timers by due time, then by scheduling order.
type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].id < q[j].id
}

func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) { *q = append(*q, x.(*timer)) }

func (q *timerQueue) Pop() any {
	old := *q
	t := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	return t
}

func (q *timerQueue) schedule(t *timer) { heap.Push(q, t) }

// next pops the earliest timer due at or before limit.
func (q *timerQueue) next(limit time.Duration) (*timer, bool) {
	if q.Len() == 0 || (*q)[0].due > limit {
		return nil, false
	}
	return heap.Pop(q).(*timer), true
}

func (q *timerQueue) cancel(id int64) bool {
	for i, t := range *q {
		if t.id == id {
			heap.Remove(q, i)
			return true
		}
	}
	return false
}
