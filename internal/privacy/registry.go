package privacy

import (
	"strings"
	"sync"
)

// Registry holds the named recognizers shared by all scans. Scans work on a
// Snapshot, so Add and Remove never tear a scan that is already running.
type Registry struct {
	mu     sync.RWMutex
	order  []Recognizer
	byName map[string]int
}

// NewRegistry returns a registry pre-populated with recognizers, in order.
func NewRegistry(recognizers ...Recognizer) (*Registry, error) {
	r := &Registry{byName: make(map[string]int)}
	for _, rec := range recognizers {
		if err := r.Add(rec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add inserts rec, or replaces the recognizer already registered under the
// same name. A replaced recognizer keeps its registration position.
func (r *Registry) Add(rec Recognizer) error {
	if rec == nil {
		return configErr("", "nil recognizer", nil)
	}
	if err := checkIdentity(rec.Name(), rec.Category(), 0); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byName[rec.Name()]; ok {
		r.order[idx] = rec
		return nil
	}
	r.byName[rec.Name()] = len(r.order)
	r.order = append(r.order, rec)
	return nil
}

// Remove drops the named recognizer. Unknown names are a no-op.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byName[name]
	if !ok {
		return false
	}
	r.order = append(r.order[:idx:idx], r.order[idx+1:]...)
	delete(r.byName, name)
	for i := idx; i < len(r.order); i++ {
		r.byName[r.order[i].Name()] = i
	}
	return true
}

// RemoveDefinition drops the recognizer registered as name and every part
// "name/<pattern>" built from a multi-pattern definition. It returns the
// number removed.
func (r *Registry) RemoveDefinition(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := name + "/"
	kept := r.order[:0:0]
	removed := 0
	for _, rec := range r.order {
		if n := rec.Name(); n == name || strings.HasPrefix(n, prefix) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	if removed == 0 {
		return 0
	}
	r.order = kept
	r.byName = make(map[string]int, len(kept))
	for i, rec := range kept {
		r.byName[rec.Name()] = i
	}
	return removed
}

// Get returns the named recognizer.
func (r *Registry) Get(name string) (Recognizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.order[idx], true
}

// Snapshot returns the active recognizers in registration order. The slice
// is a private copy owned by the caller.
func (r *Registry) Snapshot() []Recognizer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Recognizer, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns recognizer names in registration order.
func (r *Registry) Names() []string {
	snap := r.Snapshot()
	names := make([]string, len(snap))
	for i, rec := range snap {
		names[i] = rec.Name()
	}
	return names
}

// Len returns the number of registered recognizers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
