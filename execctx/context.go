// Package execctx defines the per-call Context value threaded through every
// module invocation: trace id, call chain, caller identity, and a shared
// mutable scratch map used by observability middlewares.
package execctx

import (
	"github.com/artpar/apcore/adapters/idgen"
)

// IdentityType classifies the caller behind an Identity.
type IdentityType string

const (
	IdentityUser    IdentityType = "user"
	IdentitySystem  IdentityType = "system"
	IdentityService IdentityType = "service"
)

// Identity describes the caller attached to a Context, when known.
type Identity struct {
	ID         string
	Type       IdentityType
	Roles      []string
	Attributes map[string]any
}

// HasRole reports whether the identity carries the given role.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Executor is the back-reference a module body uses to invoke nested
// modules from within its own execute(). The executor package provides the
// concrete implementation; execctx only needs the shape to avoid an import
// cycle (executor depends on execctx, not the reverse).
type Executor interface {
	Call(moduleID string, inputs map[string]any, ctx *Context) (map[string]any, error)
}

// Context is the immutable-by-convention value passed through every call.
// Data is shared by reference between a parent context and every context
// derived from it via Child, while Child gives each derived context its own
// copy of CallChain — per the concurrency model, one
// call tree is confined to a single worker, so no internal locking is
// needed here.
type Context struct {
	TraceID        string
	CallerID       string // empty means "no caller" (top-level / "@external")
	CallChain      []string
	Identity       *Identity
	Executor       Executor
	RedactedInputs map[string]any
	Data           map[string]any
}

var defaultIDGen idgen.Generator = idgen.UUID{}

// Root builds a fresh root context for a new call tree. CallChain starts
// empty; the executor extends it via Child before invoking a module body,
// which is what keeps the "CallChain is never empty inside execute"
// invariant.
func Root(executor Executor) *Context {
	return &Context{
		TraceID:   defaultIDGen.New(),
		CallChain: nil,
		Executor:  executor,
		Data:      make(map[string]any),
	}
}

// RootWithTraceID builds a root context with a caller-supplied trace id,
// useful when a call tree must continue a trace started by an external
// system (e.g. an HTTP request id).
func RootWithTraceID(traceID string, executor Executor) *Context {
	return &Context{
		TraceID:   traceID,
		CallChain: nil,
		Executor:  executor,
		Data:      make(map[string]any),
	}
}

// Leaf returns the last module id in CallChain, or "" if the chain is empty
// (meaning this context has not yet entered any module body).
func (c *Context) Leaf() string {
	if len(c.CallChain) == 0 {
		return ""
	}
	return c.CallChain[len(c.CallChain)-1]
}

// Child returns a context for invoking nextModuleID: same trace id, same
// Data reference (shared scratch space across the whole call tree),
// CallerID set to the current leaf, and CallChain extended by one.
func (c *Context) Child(nextModuleID string) *Context {
	chain := make([]string, len(c.CallChain)+1)
	copy(chain, c.CallChain)
	chain[len(chain)-1] = nextModuleID

	return &Context{
		TraceID:   c.TraceID,
		CallerID:  c.Leaf(),
		CallChain: chain,
		Identity:  c.Identity,
		Executor:  c.Executor,
		Data:      c.Data,
	}
}

// CallerOrExternal returns CallerID, or the sentinel "@external" used by
// the ACL matcher when a call has no caller (top-level invocation).
func (c *Context) CallerOrExternal() string {
	if c.CallerID == "" {
		return "@external"
	}
	return c.CallerID
}

// Reserved key prefixes for context.Data. User module code must never read
// or write keys under these prefixes; they are owned by the named
// subsystem and documented here so every subsystem can enforce the same
// namespace.
const (
	DataKeyTracingSpans    = "_tracing_spans"
	DataKeyTracingSampled  = "_tracing_sampled"
	DataKeyMetricsStarts   = "_metrics_starts"
	DataKeyObsLoggingStart = "_obs_logging_starts"
	DataKeyApprovalToken   = "_approval_token"
)

// SecretPrefix marks an input/extra key whose value must never reach a log
// sink or a redacted-inputs view unredacted.
const SecretPrefix = "_secret_"

// IsReservedKey reports whether key falls under a reserved _prefix that
// user modules must not write to directly.
func IsReservedKey(key string) bool {
	return len(key) > 0 && key[0] == '_'
}
