package scheduler

import "sync"

// inflightSet ensures that only one check per monitor runs at any given time.
type inflightSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInflightSet() *inflightSet {
	return &inflightSet{ids: make(map[string]struct{})}
}

// Acquire returns false when the monitor is already in flight.
func (f *inflightSet) Acquire(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.ids[id]; exists {
		return false
	}
	f.ids[id] = struct{}{}
	return true
}

func (f *inflightSet) Release(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, id)
}

func (f *inflightSet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}
