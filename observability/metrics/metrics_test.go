package metrics_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/artpar/apcore/execctx"
	"github.com/artpar/apcore/observability/metrics"
)

func TestCollector_EmptyExportsEmptyString(t *testing.T) {
	c := metrics.NewCollector(nil)
	if out := c.ExportPrometheus(); out != "" {
		t.Fatalf("expected empty export, got %q", out)
	}
}

func TestCollector_IncrementAndExport(t *testing.T) {
	c := metrics.NewCollector(nil)
	c.IncrementCalls("math.add", "success")
	c.IncrementCalls("math.add", "success")

	out := c.ExportPrometheus()
	if !strings.Contains(out, "apcore_module_calls_total{module_id=\"math.add\",status=\"success\"} 2") {
		t.Fatalf("unexpected export:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE apcore_module_calls_total counter") {
		t.Fatalf("expected TYPE line, got:\n%s", out)
	}
}

func TestCollector_Histogram(t *testing.T) {
	c := metrics.NewCollector([]float64{0.1, 1})
	c.ObserveDuration("math.add", 0.05)
	c.ObserveDuration("math.add", 5)

	out := c.ExportPrometheus()
	if !strings.Contains(out, `le="0.1"`) || !strings.Contains(out, `le="+Inf"`) {
		t.Fatalf("expected bucket lines, got:\n%s", out)
	}
	if !strings.Contains(out, "_sum{module_id=\"math.add\"}") {
		t.Fatalf("expected sum line, got:\n%s", out)
	}
}

func TestMiddleware_SuccessAndErrorPaths(t *testing.T) {
	c := metrics.NewCollector(nil)
	mw := metrics.NewMiddleware(c)
	ctx := execctx.Root(nil)

	mw.Before("math.add", map[string]any{}, ctx)
	mw.After("math.add", map[string]any{}, map[string]any{}, ctx)

	mw.Before("math.add", map[string]any{}, ctx)
	mw.OnError("math.add", map[string]any{}, errors.New("boom"), ctx)

	out := c.ExportPrometheus()
	if !strings.Contains(out, `status="success"`) || !strings.Contains(out, `status="error"`) {
		t.Fatalf("expected both success and error counters, got:\n%s", out)
	}
	if !strings.Contains(out, "apcore_module_errors_total") {
		t.Fatalf("expected error counter, got:\n%s", out)
	}
}

func TestCanonicalLabels_SortedKeys(t *testing.T) {
	c := metrics.NewCollector(nil)
	c.Increment("custom_metric", map[string]string{"b": "2", "a": "1"}, 1)
	out := c.ExportPrometheus()
	if !strings.Contains(out, `custom_metric{a="1",b="2"}`) {
		t.Fatalf("expected sorted label keys, got:\n%s", out)
	}
}
