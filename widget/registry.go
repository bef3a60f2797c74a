package widget

import "sync"

// Registry holds the multi-select forms of a session, keyed by widget id.
type Registry struct {
	mu    sync.Mutex
	forms map[string]*MultiSelect
}

func NewRegistry() *Registry {
	return &Registry{forms: make(map[string]*MultiSelect)}
}

// Form returns the form with the given id, creating it on first use.
func (r *Registry) Form(id string) *MultiSelect {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forms[id]
	if !ok {
		f = NewMultiSelect()
		r.forms[id] = f
	}
	return f
}

// Lookup returns the form with the given id if it exists.
func (r *Registry) Lookup(id string) (*MultiSelect, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forms[id]
	return f, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.forms, id)
	r.mu.Unlock()
}
