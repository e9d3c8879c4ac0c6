// Package executor implements the call/callAsync/stream pipeline that
// ties the registry, schema validation, ACL, approval gate, middleware,
// and observability together (§4.7).
package executor

import (
	"fmt"

	"github.com/artpar/apcore/acl"
	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/approval"
	"github.com/artpar/apcore/core/module"
	"github.com/artpar/apcore/core/registry"
	"github.com/artpar/apcore/core/schema"
	"github.com/artpar/apcore/execctx"
	"github.com/artpar/apcore/middleware"
)

// SafetyLimits bounds call-chain depth and per-module repetition within
// one call tree.
type SafetyLimits struct {
	MaxCallDepth    int
	MaxModuleRepeat int
}

// DefaultSafetyLimits matches common sense defaults for an unbounded
// recursive module graph: generous enough for legitimate fan-out, tight
// enough to catch runaway recursion quickly.
func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{MaxCallDepth: 50, MaxModuleRepeat: 5}
}

// Redactor computes context.redactedInputs from raw inputs.
type Redactor func(inputs map[string]any) map[string]any

// DefaultRedactor replaces any key starting with execctx.SecretPrefix
// with a fixed marker, leaving every other key untouched.
func DefaultRedactor(inputs map[string]any) map[string]any {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if len(k) >= len(execctx.SecretPrefix) && k[:len(execctx.SecretPrefix)] == execctx.SecretPrefix {
			out[k] = "***REDACTED***"
			continue
		}
		out[k] = v
	}
	return out
}

// Executor runs the full call pipeline against a Registry.
type Executor struct {
	Registry   *registry.Registry
	Validator  *schema.Validator
	ACL        *acl.ACL
	Approval   *approval.Gate
	Middleware *middleware.Manager
	Limits     SafetyLimits
	Redact     Redactor

	OnChainError func(err error)
}

// New builds an Executor with sane defaults: a coercing validator, an
// allow-all ACL, no approval gate, an empty middleware manager, and the
// default safety limits.
func New(reg *registry.Registry) *Executor {
	return &Executor{
		Registry:   reg,
		Validator:  schema.NewValidator(),
		ACL:        acl.New(nil, acl.EffectAllow),
		Middleware: middleware.NewManager(),
		Limits:     DefaultSafetyLimits(),
		Redact:     DefaultRedactor,
	}
}

// Call executes moduleID against inputs, using ctx if non-nil or a fresh
// root context otherwise, implementing §4.7 steps 1-12.
func (e *Executor) Call(moduleID string, inputs map[string]any, ctx *execctx.Context) (map[string]any, error) {
	// Step 1: resolve module.
	mod, err := e.Registry.Get(moduleID)
	if err != nil {
		return nil, err
	}
	if mod == nil {
		return nil, apcerrors.ModuleNotFound(moduleID)
	}

	// Step 2: default inputs/context.
	if inputs == nil {
		inputs = map[string]any{}
	}
	if ctx == nil {
		ctx = execctx.Root(e)
	}

	// Step 3: safety checks.
	if err := e.checkSafety(moduleID, ctx); err != nil {
		return nil, err
	}

	// Step 4: validate input.
	validated, err := e.Validator.ValidateInput(inputs, mod.InputSchema)
	if err != nil {
		return nil, err
	}
	validatedInputs, _ := validated.(map[string]any)
	if validatedInputs == nil {
		validatedInputs = inputs
	}

	// Step 5: ACL check.
	if e.ACL != nil {
		if err := e.ACL.Check(moduleID, ctx); err != nil {
			return nil, err
		}
	}

	// Step 6: approval gate, only if required and configured.
	if mod.Annotations.RequiresApproval && e.Approval != nil {
		if err := e.Approval.Evaluate(moduleID, validatedInputs, annotationsToMap(mod.Annotations), mod.Description, mod.Tags, ctx); err != nil {
			return nil, err
		}
	}

	// Step 7: build child context.
	child := ctx.Child(moduleID)
	if e.Redact != nil {
		child.RedactedInputs = e.Redact(validatedInputs)
	}

	// Steps 8-11 run under the onError recovery umbrella (step 12).
	return e.runGuarded(mod, moduleID, validatedInputs, child)
}

func (e *Executor) runGuarded(mod *module.Module, moduleID string, inputs map[string]any, ctx *execctx.Context) (map[string]any, error) {
	snapshot := e.Middleware.Snapshot()

	// Step 8: middleware before.
	transformedInputs, executed, err := e.Middleware.ExecuteBefore(snapshot, moduleID, inputs, ctx)
	if err != nil {
		return e.recover(moduleID, inputs, executed, err, ctx)
	}

	// Step 9: execute.
	output, err := mod.Execute(transformedInputs, ctx)
	if err != nil {
		return e.recover(moduleID, inputs, executed, err, ctx)
	}
	if output == nil {
		output = map[string]any{}
	}

	// Step 10: validate output.
	validatedOut, err := e.Validator.ValidateOutput(output, mod.OutputSchema)
	if err != nil {
		return e.recover(moduleID, inputs, executed, err, ctx)
	}
	outMap, _ := validatedOut.(map[string]any)
	if outMap == nil {
		outMap = output
	}

	// Step 11: middleware after.
	final, err := e.Middleware.ExecuteAfter(executed, moduleID, inputs, outMap, ctx)
	if err != nil {
		return e.recover(moduleID, inputs, executed, err, ctx)
	}
	return final, nil
}

// recover implements step 12: give middleware onError a chance to
// supply a recovery value before re-raising.
func (e *Executor) recover(moduleID string, inputs map[string]any, executed []middleware.Middleware, callErr error, ctx *execctx.Context) (map[string]any, error) {
	recovery := e.Middleware.ExecuteOnError(executed, moduleID, inputs, callErr, ctx, e.onHookFailure)
	if recovery != nil {
		return recovery, nil
	}
	return nil, callErr
}

func (e *Executor) onHookFailure(mw middleware.Middleware, err error) {
	if e.OnChainError != nil {
		e.OnChainError(err)
	}
}

func (e *Executor) checkSafety(moduleID string, ctx *execctx.Context) error {
	chain := ctx.CallChain
	if len(chain)+1 > e.Limits.MaxCallDepth {
		return apcerrors.CallDepthExceeded(moduleID, len(chain)+1, e.Limits.MaxCallDepth)
	}

	count := 0
	for _, id := range chain {
		if id == moduleID {
			count++
		}
	}
	if count > 0 {
		return apcerrors.CircularCall(moduleID)
	}
	if count+1 > e.Limits.MaxModuleRepeat {
		return apcerrors.CallFrequencyExceeded(moduleID, count+1, e.Limits.MaxModuleRepeat)
	}
	return nil
}

func annotationsToMap(a module.Annotations) map[string]any {
	return map[string]any{
		"readonly":         a.ReadOnly,
		"destructive":      a.Destructive,
		"idempotent":       a.Idempotent,
		"requiresApproval": a.RequiresApproval,
		"openWorld":        a.OpenWorld,
		"streaming":        a.Streaming,
	}
}

// CallAsync is the asynchronous form of Call; semantics are identical
// since Go's goroutines make async/sync call shapes equivalent at the
// API boundary — callers that want concurrency run Call in their own
// goroutine and receive the result over a channel.
func (e *Executor) CallAsync(moduleID string, inputs map[string]any, ctx *execctx.Context) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		output, err := e.Call(moduleID, inputs, ctx)
		out <- Result{Output: output, Err: err}
		close(out)
	}()
	return out
}

// Result is what CallAsync delivers on its channel.
type Result struct {
	Output map[string]any
	Err    error
}

// Stream produces a lazy sequence of output chunks: one chunk for
// non-streaming modules (the full output), or the module's own chunked
// output for modules annotated streaming:true.
func (e *Executor) Stream(moduleID string, inputs map[string]any, ctx *execctx.Context) (<-chan StreamChunk, error) {
	mod, err := e.Registry.Get(moduleID)
	if err != nil {
		return nil, err
	}
	if mod == nil {
		return nil, apcerrors.ModuleNotFound(moduleID)
	}

	out := make(chan StreamChunk, 1)
	if !mod.Annotations.Streaming {
		go func() {
			output, err := e.Call(moduleID, inputs, ctx)
			if err != nil {
				out <- StreamChunk{Err: err}
			} else {
				out <- StreamChunk{Chunk: output, Done: true}
			}
			close(out)
		}()
		return out, nil
	}

	streamer, ok := mod.Metadata["stream"].(func(map[string]any, *execctx.Context, chan<- StreamChunk))
	if !ok {
		return nil, fmt.Errorf("module %q declares streaming:true but has no stream adapter", moduleID)
	}
	go func() {
		defer close(out)
		streamer(inputs, ctx, out)
	}()
	return out, nil
}

// StreamChunk is one element of a Stream sequence.
type StreamChunk struct {
	Chunk map[string]any
	Err   error
	Done  bool
}
