package sink

import (
	"sync"

	"go.uber.org/multierr"
)

// Registry caches one sink per destination for the lifetime of a run.
type Registry struct {
	opts Options

	mu    sync.Mutex
	sinks map[string]*Sink
}

// NewRegistry creates an empty registry. All sinks it creates share opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:  opts.withDefaults(),
		sinks: make(map[string]*Sink),
	}
}

// Get returns the sink for dest, creating it on first reference.
func (r *Registry) Get(dest Destination) *Sink {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dest.Key()
	if s, ok := r.sinks[key]; ok {
		return s
	}

	s := New(dest, r.opts)
	r.sinks[key] = s

	return s
}

// Len returns the number of sinks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sinks)
}

// Shutdown flushes and closes every sink and empties the registry.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	sinks := make([]*Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		sinks = append(sinks, s)
	}
	r.sinks = make(map[string]*Sink)
	r.mu.Unlock()

	var err error
	for _, s := range sinks {
		err = multierr.Append(err, s.Shutdown())
	}

	return err
}
