package errors

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Hook receives every enhanced error built while it is registered. Hooks
// run synchronously on the goroutine that built the error and must not
// block.
type Hook func(ee *EnhancedError)

var (
	hooksMu            sync.RWMutex
	hooks              []Hook
	hasActiveReporting atomic.Bool
)

// AddErrorHook registers a hook for every subsequently built error.
func AddErrorHook(h Hook) {
	if h == nil {
		return
	}
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = append(hooks, h)
	hasActiveReporting.Store(true)
}

// ClearErrorHooks removes all registered hooks.
func ClearErrorHooks() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = nil
	hasActiveReporting.Store(false)
}

func runHooks(ee *EnhancedError) {
	hooksMu.RLock()
	registered := slices.Clone(hooks)
	hooksMu.RUnlock()

	for _, h := range registered {
		h(ee)
	}
}
