// Package tracing implements the spec's tracing pillar: a middleware
// that pushes a span per module call onto a per-context stack and hands
// finished spans to a pluggable Exporter.
package tracing

import (
	cryptorand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	mathrand "math/rand/v2"
	"sync"
	"time"

	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/execctx"
)

// Strategy selects the sampling policy.
type Strategy string

const (
	StrategyFull         Strategy = "full"
	StrategyProportional Strategy = "proportional"
	StrategyErrorFirst   Strategy = "error_first"
	StrategyOff          Strategy = "off"
)

// Span is one recorded module call. TraceID is stable for every span in
// one call tree; ID (the span id) is unique within that trace per §3's
// invariant, and every non-root span's ParentID names an earlier span's
// ID within the same TraceID (§4.9.1, testable property 9).
type Span struct {
	TraceID    string         `json:"trace_id"`
	ID         string         `json:"id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time,omitempty"`
	Status     string         `json:"status,omitempty"`
}

// Exporter accepts finished spans. Implementations must not block the
// call path for long — OTLP export in particular is fire-and-forget.
type Exporter interface {
	Export(span Span)
}

// Middleware is the tracing pillar's before/after/onError hooks.
type Middleware struct {
	exporter     Exporter
	samplingRate float64
	strategy     Strategy
	rng          func() float64
}

// NewMiddleware validates samplingRate and strategy per §4.9.1.
func NewMiddleware(exporter Exporter, samplingRate float64, strategy Strategy) (*Middleware, error) {
	if samplingRate < 0 || samplingRate > 1 {
		return nil, apcerrors.InvalidInput(fmt.Sprintf("samplingRate %v out of [0,1]", samplingRate))
	}
	switch strategy {
	case StrategyFull, StrategyProportional, StrategyErrorFirst, StrategyOff:
	default:
		return nil, apcerrors.InvalidInput(fmt.Sprintf("unknown tracing strategy %q", strategy))
	}
	return &Middleware{exporter: exporter, samplingRate: samplingRate, strategy: strategy, rng: mathrand.Float64}, nil
}

func newSpanID() string {
	buf := make([]byte, 8)
	if _, err := cryptorand.Read(buf); err != nil {
		return hex.EncodeToString(make([]byte, 8))
	}
	return hex.EncodeToString(buf)
}

func (m *Middleware) sampledFor(ctx *execctx.Context) bool {
	if v, ok := ctx.Data[execctx.DataKeyTracingSampled]; ok {
		b, _ := v.(bool)
		return b
	}
	var sampled bool
	switch m.strategy {
	case StrategyFull:
		sampled = true
	case StrategyOff:
		sampled = false
	case StrategyProportional, StrategyErrorFirst:
		sampled = m.rng() < m.samplingRate
	}
	ctx.Data[execctx.DataKeyTracingSampled] = sampled
	return sampled
}

func spanStack(ctx *execctx.Context) []*Span {
	raw, _ := ctx.Data[execctx.DataKeyTracingSpans].([]*Span)
	return raw
}

func setSpanStack(ctx *execctx.Context, stack []*Span) {
	ctx.Data[execctx.DataKeyTracingSpans] = stack
}

// Before pushes a new span for moduleID.
func (m *Middleware) Before(moduleID string, inputs map[string]any, ctx *execctx.Context) (map[string]any, error) {
	m.sampledFor(ctx)

	stack := spanStack(ctx)
	var parentID string
	if len(stack) > 0 {
		parentID = stack[len(stack)-1].ID
	}

	span := &Span{
		TraceID:  ctx.TraceID,
		ID:       newSpanID(),
		ParentID: parentID,
		Name:     "apcore.module.execute",
		Attributes: map[string]any{
			"moduleId":  moduleID,
			"method":    "execute",
			"callerId":  ctx.CallerOrExternal(),
		},
		StartTime: time.Now(),
	}
	setSpanStack(ctx, append(stack, span))
	return inputs, nil
}

func (m *Middleware) pop(ctx *execctx.Context) *Span {
	stack := spanStack(ctx)
	if len(stack) == 0 {
		return nil
	}
	span := stack[len(stack)-1]
	setSpanStack(ctx, stack[:len(stack)-1])
	return span
}

// After pops the span, marks it ok, and exports if sampled.
func (m *Middleware) After(moduleID string, inputs, output map[string]any, ctx *execctx.Context) (map[string]any, error) {
	span := m.pop(ctx)
	if span == nil {
		return output, nil
	}
	span.EndTime = time.Now()
	span.Status = "ok"
	span.Attributes["duration_ms"] = float64(span.EndTime.Sub(span.StartTime).Microseconds()) / 1000.0
	span.Attributes["success"] = true

	if sampled(ctx) {
		m.exporter.Export(*span)
	}
	return output, nil
}

// OnError pops the span, marks it errored, and exports if sampled or the
// strategy forces errors through regardless of the sampling decision.
func (m *Middleware) OnError(moduleID string, inputs map[string]any, callErr error, ctx *execctx.Context) (map[string]any, error) {
	span := m.pop(ctx)
	if span == nil {
		return nil, nil
	}
	span.EndTime = time.Now()
	span.Status = "error"
	span.Attributes["success"] = false
	span.Attributes["error_code"] = errorCode(callErr)

	if sampled(ctx) || m.strategy == StrategyErrorFirst {
		m.exporter.Export(*span)
	}
	return nil, nil
}

func sampled(ctx *execctx.Context) bool {
	v, _ := ctx.Data[execctx.DataKeyTracingSampled].(bool)
	return v
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if k := apcerrors.KindOf(err); k != "" {
		return string(k)
	}
	return fmt.Sprintf("%T", err)
}

// StdoutExporter writes one JSON line per span to a writer.
type StdoutExporter struct {
	mu     sync.Mutex
	Writer interface{ Write([]byte) (int, error) }
}

func (e *StdoutExporter) Export(span Span) {
	line, err := json.Marshal(span)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Writer.Write(append(line, '\n'))
}

// InMemoryExporter is a bounded FIFO ring of recent spans, useful for
// tests and local inspection endpoints.
type InMemoryExporter struct {
	mu       sync.Mutex
	capacity int
	spans    []Span
}

// NewInMemoryExporter builds a ring with the given capacity, defaulting
// to 10,000 per §4.9.1.
func NewInMemoryExporter(capacity int) *InMemoryExporter {
	if capacity <= 0 {
		capacity = 10000
	}
	return &InMemoryExporter{capacity: capacity}
}

func (e *InMemoryExporter) Export(span Span) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, span)
	if len(e.spans) > e.capacity {
		e.spans = e.spans[len(e.spans)-e.capacity:]
	}
}

// GetSpans returns a defensive copy of the current ring contents.
func (e *InMemoryExporter) GetSpans() []Span {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Span, len(e.spans))
	copy(out, e.spans)
	return out
}

// Clear empties the ring.
func (e *InMemoryExporter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return int64(math.Round(float64(t.UnixNano())))
}
