package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownModel is returned for keys that were never registered.
var ErrUnknownModel = errors.New("llm: unknown model")

// Factory builds a fresh client for one registered key.
type Factory func(ctx context.Context) (Client, error)

type entry struct {
	modelID string
	factory Factory
}

// Registry maps symbolic model keys (e.g. "NOVA_LITE_BR") to client factories.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds or replaces key.
func (r *Registry) Register(key, modelID string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = entry{modelID: modelID, factory: f}
}

// Create instantiates the client registered under key.
func (r *Registry) Create(ctx context.Context, key string) (Client, error) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, key)
	}
	return e.factory(ctx)
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ModelIDForKey resolves a key to its provider model id.
func (r *Registry) ModelIDForKey(key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, key)
	}
	return e.modelID, nil
}

// KeyForModelID is the reverse of ModelIDForKey. When several keys share a
// model id the lexically smallest key wins.
func (r *Registry) KeyForModelID(modelID string) (string, bool) {
	for _, k := range r.Keys() {
		if id, _ := r.ModelIDForKey(k); id == modelID {
			return k, true
		}
	}
	return "", false
}
