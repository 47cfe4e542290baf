package process

import "sync"

// Registry is the set of live child processes.
type Registry struct {
	mu     sync.Mutex
	procs  map[Handle]struct{}
	closed bool
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[Handle]struct{})}
}

// Add registers h. It returns false, and leaves h unregistered, once
// the registry is closed; the caller then owns stopping h.
func (r *Registry) Add(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	r.procs[h] = struct{}{}
	return true
}

// Close rejects further registrations. A Snapshot taken after Close
// contains every process that will ever be registered.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
}

func (r *Registry) Remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.procs, h)
}

func (r *Registry) Contains(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.procs[h]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.procs)
}

// Snapshot returns a copy of the current members, safe to
// iterate while processes are being added or removed.
func (r *Registry) Snapshot() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make([]Handle, 0, len(r.procs))
	for h := range r.procs {
		handles = append(handles, h)
	}

	return handles
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.procs = make(map[Handle]struct{})
}
