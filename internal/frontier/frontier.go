package frontier

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/nao1215/yieldpage/internal/model"
)

var endOfTime = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// AdmitFunc is consulted before a target on host is handed out. It returns
// false to defer the host; retryAt, when non-zero, is the earliest time the
// host may be admitted again. Returning true commits the admission.
type AdmitFunc func(host string) (ok bool, retryAt time.Time)

// Frontier is the priority queue of pending crawl targets. Targets are handed
// out in (depth, insertion order) order: shallower first, FIFO within a
// depth. The frontier is unbounded and never evicts.
//
// Internally targets are grouped per host so that a host refused by the
// admission check is skipped as a whole without reordering anything, and
// targets with a NotBefore time wait in a separate queue until due.
type Frontier struct {
	mu      sync.Mutex
	seq     uint64
	size    int
	hosts   map[string]*priorityQueue
	delayed delayQueue
}

type entry struct {
	target model.CrawlTarget
	host   string
	seq    uint64
}

func (e *entry) before(o *entry) bool {
	if e.target.Depth != o.target.Depth {
		return e.target.Depth < o.target.Depth
	}
	return e.seq < o.seq
}

// New returns an empty frontier.
func New() *Frontier {
	return &Frontier{hosts: make(map[string]*priorityQueue)}
}

// Push adds a target. Targets with a NotBefore time are not handed out by
// PopNext until that time.
func (f *Frontier) Push(t model.CrawlTarget) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e := &entry{target: t, host: t.Host(), seq: f.seq}
	f.seq++
	f.size++
	if t.NotBefore.IsZero() {
		f.pushReady(e)
		return
	}
	heap.Push(&f.delayed, e)
}

func (f *Frontier) pushReady(e *entry) {
	q, ok := f.hosts[e.host]
	if !ok {
		q = &priorityQueue{}
		f.hosts[e.host] = q
	}
	heap.Push(q, e)
}

// promote moves every delayed entry that is due at now to its host queue.
func (f *Frontier) promote(now time.Time) {
	for f.delayed.Len() > 0 && !f.delayed[0].target.NotBefore.After(now) {
		f.pushReady(heap.Pop(&f.delayed).(*entry))
	}
}

// Pop removes and returns the highest-priority target, ignoring NotBefore
// times and host admission.
func (f *Frontier) Pop() (model.CrawlTarget, bool) {
	t, _, ok := f.PopNext(endOfTime, nil)
	return t, ok
}

// PopNext removes and returns the highest-priority target that is due at now
// and whose host admit accepts. A nil admit accepts every host.
//
// When nothing can be handed out it returns ok == false and the earliest time
// at which something might become eligible (zero if unknown). Deferred targets
// stay queued at their original priority.
func (f *Frontier) PopNext(now time.Time, admit AdmitFunc) (model.CrawlTarget, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.promote(now)

	heads := make([]*entry, 0, len(f.hosts))
	for _, q := range f.hosts {
		heads = append(heads, (*q)[0])
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].before(heads[j]) })

	var wake time.Time
	for _, head := range heads {
		if admit != nil {
			ok, retryAt := admit(head.host)
			if !ok {
				wake = earliest(wake, retryAt)
				continue
			}
		}
		q := f.hosts[head.host]
		heap.Pop(q)
		if q.Len() == 0 {
			delete(f.hosts, head.host)
		}
		f.size--
		return head.target, time.Time{}, true
	}

	if f.delayed.Len() > 0 {
		wake = earliest(wake, f.delayed[0].target.NotBefore)
	}
	return model.CrawlTarget{}, wake, false
}

// Len returns the number of queued targets, including delayed ones.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

func earliest(current, candidate time.Time) time.Time {
	if candidate.IsZero() {
		return current
	}
	if current.IsZero() || candidate.Before(current) {
		return candidate
	}
	return current
}

// priorityQueue orders entries of one host by (depth, seq).
type priorityQueue []*entry

func (q priorityQueue) Len() int           { return len(q) }
func (q priorityQueue) Less(i, j int) bool { return q[i].before(q[j]) }
func (q priorityQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)        { *q = append(*q, x.(*entry)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// delayQueue orders entries by NotBefore, then seq.
type delayQueue []*entry

func (q delayQueue) Len() int { return len(q) }
func (q delayQueue) Less(i, j int) bool {
	a, b := q[i].target.NotBefore, q[j].target.NotBefore
	if !a.Equal(b) {
		return a.Before(b)
	}
	return q[i].seq < q[j].seq
}
func (q delayQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *delayQueue) Push(x any)   { *q = append(*q, x.(*entry)) }
func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}
