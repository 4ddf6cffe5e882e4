package crawler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostState is the politeness bookkeeping of one host.
type HostState struct {
	// InFlight is the number of targets of this host currently dispatched.
	InFlight int
	// LastRequest is when the most recent target of this host was dispatched.
	LastRequest time.Time

	limiter *rate.Limiter
}

// hostTable enforces per-host concurrency and request spacing. Admission is
// an atomic check-and-increment, so two workers can never both take the last
// slot of a host.
type hostTable struct {
	mu          sync.Mutex
	maxInFlight int
	interval    time.Duration
	hosts       map[string]*HostState
}

func newHostTable(maxInFlight int, interval time.Duration) *hostTable {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &hostTable{
		maxInFlight: maxInFlight,
		interval:    interval,
		hosts:       make(map[string]*HostState),
	}
}

func (h *hostTable) state(host string) *HostState {
	st, ok := h.hosts[host]
	if !ok {
		limit := rate.Inf
		if h.interval > 0 {
			limit = rate.Every(h.interval)
		}
		st = &HostState{limiter: rate.NewLimiter(limit, 1)}
		h.hosts[host] = st
	}
	return st
}

// tryAcquire admits one dispatch to host at now. When the host is saturated
// it returns false and a zero time: a release will wake the caller. When the
// host is only rate limited it returns false and the time a slot opens.
func (h *hostTable) tryAcquire(host string, now time.Time) (bool, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.state(host)
	if st.InFlight >= h.maxInFlight {
		return false, time.Time{}
	}
	if !st.limiter.AllowN(now, 1) {
		return false, st.LastRequest.Add(h.interval)
	}
	st.InFlight++
	st.LastRequest = now
	return true, time.Time{}
}

// release frees the dispatch slot taken by a successful tryAcquire.
func (h *hostTable) release(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.hosts[host]; ok && st.InFlight > 0 {
		st.InFlight--
	}
}

// snapshot returns a copy of the state of host.
func (h *hostTable) snapshot(host string) HostState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.hosts[host]
	if !ok {
		return HostState{}
	}
	return HostState{InFlight: st.InFlight, LastRequest: st.LastRequest}
}
