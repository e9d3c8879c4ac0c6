// Package middleware implements the onion-model pipeline that wraps
// every module call: before-hooks transform inputs, after-hooks
// transform outputs in reverse, and onError hooks get a chance to
// recover from a failure.
package middleware

import (
	"fmt"

	"github.com/artpar/apcore/execctx"
)

// Middleware is the three-hook contract every pipeline stage implements.
// A nil return from any hook means "pass through unchanged".
type Middleware interface {
	Before(moduleID string, inputs map[string]any, ctx *execctx.Context) (map[string]any, error)
	After(moduleID string, inputs, output map[string]any, ctx *execctx.Context) (map[string]any, error)
	OnError(moduleID string, inputs map[string]any, callErr error, ctx *execctx.Context) (map[string]any, error)
}

// ChainError wraps a before-hook failure together with the middlewares
// that had already run, so callers can unwind only what was applied.
type ChainError struct {
	Original  error
	Executed  []Middleware
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("middleware chain failed after %d stage(s): %v", len(e.Executed), e.Original)
}

func (e *ChainError) Unwrap() error { return e.Original }

// Manager owns the registered middleware list and runs the three phases.
// Not safe for concurrent mutation during iteration; callers that add or
// remove middleware from within a hook are protected by Snapshot giving
// each phase a stable view (per §4.8, no locking — single-threaded
// cooperative execution is assumed).
type Manager struct {
	stack []Middleware
}

// NewManager builds an empty middleware manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends mw to the end of the registration order.
func (m *Manager) Add(mw Middleware) {
	m.stack = append(m.stack, mw)
}

// Remove deletes mw by reference identity, returning whether it was
// present.
func (m *Manager) Remove(mw Middleware) bool {
	for i, existing := range m.stack {
		if existing == mw {
			m.stack = append(m.stack[:i], m.stack[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a defensive copy of the current registration order.
func (m *Manager) Snapshot() []Middleware {
	out := make([]Middleware, len(m.stack))
	copy(out, m.stack)
	return out
}

// ExecuteBefore runs Before on each middleware in registration order,
// accumulating inputs. If a hook fails, the failure is wrapped in a
// ChainError naming everything that ran before it.
func (m *Manager) ExecuteBefore(snapshot []Middleware, moduleID string, inputs map[string]any, ctx *execctx.Context) (map[string]any, []Middleware, error) {
	var executed []Middleware
	current := inputs
	for _, mw := range snapshot {
		next, err := mw.Before(moduleID, current, ctx)
		if err != nil {
			return current, executed, &ChainError{Original: err, Executed: executed}
		}
		executed = append(executed, mw)
		if next != nil {
			current = next
		}
	}
	return current, executed, nil
}

// ExecuteAfter runs After on executed in reverse registration order.
func (m *Manager) ExecuteAfter(executed []Middleware, moduleID string, inputs, output map[string]any, ctx *execctx.Context) (map[string]any, error) {
	current := output
	for i := len(executed) - 1; i >= 0; i-- {
		next, err := executed[i].After(moduleID, inputs, current, ctx)
		if err != nil {
			return current, &ChainError{Original: err, Executed: executed[:i+1]}
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

// ExecuteOnError runs OnError on executed in reverse order, returning the
// first non-nil recovery value. Panics and errors from an OnError hook
// are swallowed (logged by the caller) so one broken middleware can't
// cascade into losing every other middleware's chance to recover.
func (m *Manager) ExecuteOnError(executed []Middleware, moduleID string, inputs map[string]any, callErr error, ctx *execctx.Context, onHookFailure func(mw Middleware, err error)) map[string]any {
	for i := len(executed) - 1; i >= 0; i-- {
		recovery, err := safeOnError(executed[i], moduleID, inputs, callErr, ctx)
		if err != nil {
			if onHookFailure != nil {
				onHookFailure(executed[i], err)
			}
			continue
		}
		if recovery != nil {
			return recovery
		}
	}
	return nil
}

func safeOnError(mw Middleware, moduleID string, inputs map[string]any, callErr error, ctx *execctx.Context) (recovery map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("onError panic: %v", rec)
		}
	}()
	return mw.OnError(moduleID, inputs, callErr, ctx)
}
