package build

import (
	"sort"
	"sync"
)

// Tracker records in-flight units by output path and lets a caller block
// until all of them have reported completion.
type Tracker struct {
	mu      sync.Mutex
	drained *sync.Cond
	pending map[string]string
	results []Result
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	t := &Tracker{pending: make(map[string]string)}
	t.drained = sync.NewCond(&t.mu)
	return t
}

// Add registers u as outstanding. It returns false, and registers nothing,
// when another unit already writes the same output.
func (t *Tracker) Add(u *Unit) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.pending[u.Output]; dup {
		return false
	}
	for _, r := range t.results {
		if r.Output == u.Output {
			return false
		}
	}
	t.pending[u.Output] = u.Input
	return true
}

// Done records r and clears its output from the outstanding set. Results
// for outputs that are not outstanding are ignored.
func (t *Tracker) Done(r Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[r.Output]; !ok {
		return
	}
	delete(t.pending, r.Output)
	t.results = append(t.results, r)
	if len(t.pending) == 0 {
		t.drained.Broadcast()
	}
}

// Pending returns the number of outstanding units.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Wait blocks until no unit is outstanding and returns every result so far,
// sorted by input path.
func (t *Tracker) Wait() []Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.pending) > 0 {
		t.drained.Wait()
	}
	out := append([]Result(nil), t.results...)
	sort.Slice(out, func(i, j int) bool { return out[i].Input < out[j].Input })
	return out
}
