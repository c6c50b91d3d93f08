package producer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/waivern/orchestrator/types"
)

// Registry is a simple in-process Factory backed by an explicit map from
// (kind, type) to a constructor. It replaces the singleton DI container
// pattern: callers build one Registry and pass it to the Planner and
// Executor explicitly, never through a package-level global.
type Registry struct {
	mu    sync.RWMutex
	ctors map[registryKey]func() Producer
}

type registryKey struct {
	kind Kind
	typ  string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[registryKey]func() Producer)}
}

// Register installs a constructor for (kind, type). Registering the same
// key twice replaces the previous constructor.
func (r *Registry) Register(kind Kind, typ string, ctor func() Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[registryKey{kind, typ}] = ctor
}

// Resolve implements Factory.
func (r *Registry) Resolve(kind Kind, typ string) (Producer, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[registryKey{kind, typ}]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrProducerNotFound,
			fmt.Sprintf("no %s registered for type %q", kind, typ))
	}
	return ctor(), nil
}

// Types returns the registered (kind, type) pairs, sorted for
// deterministic output (debug/inspect surfaces).
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		out = append(out, fmt.Sprintf("%s/%s", k.kind, k.typ))
	}
	sort.Strings(out)
	return out
}
