package thread

import (
	"sort"

	"github.com/sasha-s/go-deadlock"
)

// Registry maps thread identities to running Threads for diagnostics.
// A Registry is owned by whoever creates the threads; there is no global one.
type Registry struct {
	mu      deadlock.RWMutex
	threads map[ID]*Thread
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		threads: make(map[ID]*Thread),
	}
}

// Add registers t under its identity. A later thread with the same identity
// replaces the earlier entry.
func (r *Registry) Add(t *Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[t.id] = t
}

// Remove unregisters t if it is still the entry for its identity
func (r *Registry) Remove(t *Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.threads[t.id] == t {
		delete(r.threads, t.id)
	}
}

// Lookup returns the thread registered for id
func (r *Registry) Lookup(id ID) (*Thread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threads[id]
	return t, ok
}

// NameOf returns the name of the thread registered for id, or ""
func (r *Registry) NameOf(id ID) string {
	if t, ok := r.Lookup(id); ok {
		return t.name
	}
	return ""
}

// Current returns the registered thread the caller is running on.
// Only available where thread ids are native (Linux).
func (r *Registry) Current() (*Thread, bool) {
	if !threadIDsAreNative {
		return nil, false
	}
	return r.Lookup(currentThreadID())
}

// Len returns the number of registered threads
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.threads)
}

// Names returns the sorted names of all registered threads
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.threads))
	for _, t := range r.threads {
		names = append(names, t.name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// CurrentID returns the identity of the calling OS thread, or 0 where thread
// ids are not native
func CurrentID() ID {
	return currentThreadID()
}
