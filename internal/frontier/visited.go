package frontier

import "sync"

// State is the lifecycle state of a URL in the visited set.
type State int

const (
	// Unknown means the URL has never been claimed.
	Unknown State = iota
	// Claimed means a worker owns the URL's crawl.
	Claimed
	// Done means the URL was fetched and its record emitted.
	Done
	// Failed means every allowed attempt failed.
	Failed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type visit struct {
	state  State
	reason string
}

// VisitedSet records every URL claimed during a run. TryClaim is the single
// serialization point that guarantees a URL is crawled at most once.
// Entries are never removed.
type VisitedSet struct {
	mu      sync.Mutex
	entries map[string]*visit
}

// NewVisitedSet returns an empty visited set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{entries: make(map[string]*visit)}
}

// TryClaim atomically claims url. It returns true for exactly one caller per
// URL; every later call returns false.
func (v *VisitedSet) TryClaim(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.entries[url]; ok {
		return false
	}
	v.entries[url] = &visit{state: Claimed}
	return true
}

// MarkDone records that url completed.
func (v *VisitedSet) MarkDone(url string) {
	v.set(url, Done, "")
}

// MarkFailed records that url failed terminally with reason.
func (v *VisitedSet) MarkFailed(url, reason string) {
	v.set(url, Failed, reason)
}

func (v *VisitedSet) set(url string, state State, reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[url]
	if !ok {
		// Completion without a claim still records the URL so it is never
		// claimed afterwards.
		e = &visit{}
		v.entries[url] = e
	}
	e.state = state
	e.reason = reason
}

// State returns the state of url and, for failed URLs, the failure reason.
func (v *VisitedSet) State(url string) (State, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[url]
	if !ok {
		return Unknown, ""
	}
	return e.state, e.reason
}

// Seen reports whether url was ever claimed.
func (v *VisitedSet) Seen(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.entries[url]
	return ok
}

// Len returns the number of claimed URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// Counts returns the number of URLs in each state.
func (v *VisitedSet) Counts() map[State]int {
	v.mu.Lock()
	defer v.mu.Unlock()
	counts := make(map[State]int, 3)
	for _, e := range v.entries {
		counts[e.state]++
	}
	return counts
}
