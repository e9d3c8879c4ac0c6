// Package metrics implements the spec's metrics pillar: an in-process
// counter/histogram collector plus a middleware that records call
// counts, error counts, and durations, exportable in Prometheus text
// format.
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/execctx"
)

// DefaultBuckets are the spec's default histogram bucket boundaries.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}

const (
	MetricCallsTotal   = "apcore_module_calls_total"
	MetricErrorsTotal  = "apcore_module_errors_total"
	MetricDurationSecs = "apcore_module_duration_seconds"
)

type histogram struct {
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

// Collector accumulates counters and histograms keyed by metric name
// plus a canonicalized label set.
type Collector struct {
	mu         sync.Mutex
	buckets    []float64
	counters   map[string]int64
	histograms map[string]*histogram
}

// NewCollector builds a Collector using buckets, sorted ascending, or
// DefaultBuckets if empty.
func NewCollector(buckets []float64) *Collector {
	if len(buckets) == 0 {
		buckets = append([]float64{}, DefaultBuckets...)
	} else {
		buckets = append([]float64{}, buckets...)
		sort.Float64s(buckets)
	}
	return &Collector{
		buckets:    buckets,
		counters:   make(map[string]int64),
		histograms: make(map[string]*histogram),
	}
}

// canonicalLabels renders labels as "k1=v1,k2=v2" with keys sorted.
func canonicalLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + labels[k]
	}
	return strings.Join(parts, ",")
}

func compositeKey(name string, labels map[string]string) string {
	return name + "|" + canonicalLabels(labels)
}

// Increment adds amount to name{labels}'s counter.
func (c *Collector) Increment(name string, labels map[string]string, amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[compositeKey(name, labels)] += amount
}

// Observe records value into name{labels}'s histogram.
func (c *Collector) Observe(name string, labels map[string]string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := compositeKey(name, labels)
	h, ok := c.histograms[key]
	if !ok {
		h = &histogram{buckets: c.buckets, counts: make([]int64, len(c.buckets)+1)}
		c.histograms[key] = h
	}
	h.sum += value
	h.count++
	for i, b := range h.buckets {
		if value <= b {
			h.counts[i]++
		}
	}
	h.counts[len(h.counts)-1]++ // +Inf bucket
}

// IncrementCalls is a convenience for the standard module-call counter.
func (c *Collector) IncrementCalls(moduleID, status string) {
	c.Increment(MetricCallsTotal, map[string]string{"module_id": moduleID, "status": status}, 1)
}

// IncrementErrors is a convenience for the standard error counter.
func (c *Collector) IncrementErrors(moduleID, errorCode string) {
	c.Increment(MetricErrorsTotal, map[string]string{"module_id": moduleID, "error_code": errorCode}, 1)
}

// ObserveDuration is a convenience for the standard duration histogram.
func (c *Collector) ObserveDuration(moduleID string, seconds float64) {
	c.Observe(MetricDurationSecs, map[string]string{"module_id": moduleID}, seconds)
}

// ExportPrometheus renders all accumulated metrics in Prometheus text
// exposition format. An empty collector returns "".
func (c *Collector) ExportPrometheus() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.counters) == 0 && len(c.histograms) == 0 {
		return ""
	}

	var sb strings.Builder
	emittedHelp := make(map[string]bool)

	counterNames := groupByMetric(c.counters)
	for _, name := range sortedKeys(counterNames) {
		if !emittedHelp[name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n", name, name, name)
			emittedHelp[name] = true
		}
		for _, labelStr := range counterNames[name] {
			fullKey := name + "|" + labelStr
			sb.WriteString(renderCounterLine(name, labelStr, c.counters[fullKey]))
		}
	}

	histNames := groupByMetric(mapHistogramKeys(c.histograms))
	for _, name := range sortedKeys(histNames) {
		if !emittedHelp[name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", name, name, name)
			emittedHelp[name] = true
		}
		for _, labelStr := range histNames[name] {
			h := c.histograms[name+"|"+labelStr]
			sb.WriteString(renderHistogramLines(name, labelStr, h))
		}
	}

	return sb.String()
}

func mapHistogramKeys(h map[string]*histogram) map[string]int64 {
	out := make(map[string]int64, len(h))
	for k := range h {
		out[k] = 0
	}
	return out
}

func groupByMetric(m map[string]int64) map[string][]string {
	out := make(map[string][]string)
	for key := range m {
		idx := strings.IndexByte(key, '|')
		name := key[:idx]
		labelStr := key[idx+1:]
		out[name] = append(out[name], labelStr)
	}
	for name := range out {
		sort.Strings(out[name])
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// quoteLabels turns the internal unquoted "k1=v1,k2=v2" composite-key
// form into Prometheus's quoted "k1=\"v1\",k2=\"v2\"" exposition form.
func quoteLabels(labelStr string) string {
	if labelStr == "" {
		return ""
	}
	pairs := strings.Split(labelStr, ",")
	out := make([]string, len(pairs))
	for i, p := range pairs {
		idx := strings.IndexByte(p, '=')
		if idx < 0 {
			out[i] = p
			continue
		}
		out[i] = p[:idx] + `="` + p[idx+1:] + `"`
	}
	return strings.Join(out, ",")
}

func renderCounterLine(name, labelStr string, value int64) string {
	quoted := quoteLabels(labelStr)
	if quoted == "" {
		return fmt.Sprintf("%s %d\n", name, value)
	}
	return fmt.Sprintf("%s{%s} %d\n", name, quoted, value)
}

func renderHistogramLines(name, labelStr string, h *histogram) string {
	var sb strings.Builder
	for i, b := range h.buckets {
		le := strconv.FormatFloat(b, 'g', -1, 64)
		sb.WriteString(formatLabeled(name+"_bucket", labelStr, "le", le, h.counts[i]))
	}
	sb.WriteString(formatLabeled(name+"_bucket", labelStr, "le", "+Inf", h.counts[len(h.counts)-1]))
	sb.WriteString(formatLabeledFloat(name+"_sum", labelStr, h.sum))
	sb.WriteString(formatLabeled(name+"_count", labelStr, "", "", h.count))
	return sb.String()
}

// le is placed last among labels, per §4.9.2.
func formatLabeled(name, labelStr, extraKey, extraVal string, value int64) string {
	labels := quoteLabels(labelStr)
	if extraKey != "" {
		if labels != "" {
			labels += ","
		}
		labels += extraKey + "=\"" + extraVal + "\""
	}
	if labels == "" {
		return fmt.Sprintf("%s %d\n", name, value)
	}
	return fmt.Sprintf("%s{%s} %d\n", name, labels, value)
}

func formatLabeledFloat(name, labelStr string, value float64) string {
	quoted := quoteLabels(labelStr)
	if quoted == "" {
		return fmt.Sprintf("%s %v\n", name, value)
	}
	return fmt.Sprintf("%s{%s} %v\n", name, quoted, value)
}

// Middleware records calls/errors/durations for every module execution.
type Middleware struct {
	collector *Collector
}

// NewMiddleware wraps a Collector as a middleware.
func NewMiddleware(c *Collector) *Middleware {
	return &Middleware{collector: c}
}

func startStack(ctx *execctx.Context) []int64 {
	raw, _ := ctx.Data[execctx.DataKeyMetricsStarts].([]int64)
	return raw
}

func pushStart(ctx *execctx.Context, nanos int64) {
	ctx.Data[execctx.DataKeyMetricsStarts] = append(startStack(ctx), nanos)
}

func popStart(ctx *execctx.Context) (int64, bool) {
	stack := startStack(ctx)
	if len(stack) == 0 {
		return 0, false
	}
	last := stack[len(stack)-1]
	ctx.Data[execctx.DataKeyMetricsStarts] = stack[:len(stack)-1]
	return last, true
}

// Before records the call start time.
func (m *Middleware) Before(moduleID string, inputs map[string]any, ctx *execctx.Context) (map[string]any, error) {
	pushStart(ctx, time.Now().UnixNano())
	return inputs, nil
}

// After records a successful call plus its duration.
func (m *Middleware) After(moduleID string, inputs, output map[string]any, ctx *execctx.Context) (map[string]any, error) {
	start, ok := popStart(ctx)
	m.collector.IncrementCalls(moduleID, "success")
	if ok {
		m.collector.ObserveDuration(moduleID, secondsSince(start))
	}
	return output, nil
}

// OnError records a failed call, its error code, and its duration.
func (m *Middleware) OnError(moduleID string, inputs map[string]any, callErr error, ctx *execctx.Context) (map[string]any, error) {
	start, ok := popStart(ctx)
	m.collector.IncrementCalls(moduleID, "error")
	m.collector.IncrementErrors(moduleID, errorCodeOf(callErr))
	if ok {
		m.collector.ObserveDuration(moduleID, secondsSince(start))
	}
	return nil, nil
}

func secondsSince(startNanos int64) float64 {
	return float64(time.Now().UnixNano()-startNanos) / 1e9
}

func errorCodeOf(err error) string {
	if err == nil {
		return ""
	}
	if k := apcerrors.KindOf(err); k != "" {
		return string(k)
	}
	return fmt.Sprintf("%T", err)
}
