package logging

import (
	"fmt"
	"time"

	"github.com/artpar/apcore/execctx"
)

// Middleware emits "Module call started/completed/failed" log lines
// using a stack of start times so nested calls within one context don't
// clobber each other's timing.
type Middleware struct {
	logger        *ContextLogger
	includeInputs bool
	includeOutput bool
}

// NewMiddleware builds the ObsLogging middleware. includeInputs/
// includeOutput control whether call bodies are logged alongside
// timing, on top of whatever redaction the logger itself applies.
func NewMiddleware(logger *ContextLogger, includeInputs, includeOutput bool) *Middleware {
	return &Middleware{logger: logger, includeInputs: includeInputs, includeOutput: includeOutput}
}

func startStack(ctx *execctx.Context) []int64 {
	raw, _ := ctx.Data[execctx.DataKeyObsLoggingStart].([]int64)
	return raw
}

func pushStart(ctx *execctx.Context) {
	ctx.Data[execctx.DataKeyObsLoggingStart] = append(startStack(ctx), time.Now().UnixNano())
}

func popStart(ctx *execctx.Context) (int64, bool) {
	stack := startStack(ctx)
	if len(stack) == 0 {
		return 0, false
	}
	last := stack[len(stack)-1]
	ctx.Data[execctx.DataKeyObsLoggingStart] = stack[:len(stack)-1]
	return last, true
}

func durationMs(startNanos int64) float64 {
	return float64(time.Now().UnixNano()-startNanos) / 1e6
}

// Before logs call start and pushes a timing marker.
func (m *Middleware) Before(moduleID string, inputs map[string]any, ctx *execctx.Context) (map[string]any, error) {
	pushStart(ctx)
	extra := map[string]any{}
	if m.includeInputs {
		if ctx.RedactedInputs != nil {
			extra["inputs"] = ctx.RedactedInputs
		} else {
			extra["inputs"] = inputs
		}
	}
	m.logger.FromContext(ctx, m.logger.name).Info("Module call started", extra)
	return inputs, nil
}

// After logs call completion with duration and optionally the output.
func (m *Middleware) After(moduleID string, inputs, output map[string]any, ctx *execctx.Context) (map[string]any, error) {
	start, ok := popStart(ctx)
	extra := map[string]any{}
	if ok {
		extra["duration_ms"] = durationMs(start)
	}
	if m.includeOutput {
		extra["output"] = output
	}
	m.logger.FromContext(ctx, m.logger.name).Info("Module call completed", extra)
	return output, nil
}

// OnError logs call failure with the error type and message.
func (m *Middleware) OnError(moduleID string, inputs map[string]any, callErr error, ctx *execctx.Context) (map[string]any, error) {
	popStart(ctx)
	extra := map[string]any{
		"error_type":    fmt.Sprintf("%T", callErr),
		"error_message": callErr.Error(),
	}
	m.logger.FromContext(ctx, m.logger.name).Error("Module call failed", extra)
	return nil, nil
}
