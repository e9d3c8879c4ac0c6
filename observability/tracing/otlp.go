package tracing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// OTLPExporter posts spans to an OTLP-over-JSON collector endpoint.
// Export is fire-and-forget: network errors are swallowed so a flaky
// collector never blocks or fails a module call.
type OTLPExporter struct {
	Endpoint string
	Headers  map[string]string
	Client   *http.Client
}

// NewOTLPExporter builds an exporter with a bounded-timeout client.
func NewOTLPExporter(endpoint string, headers map[string]string) *OTLPExporter {
	return &OTLPExporter{
		Endpoint: endpoint,
		Headers:  headers,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type otlpSpan struct {
	TraceID           string         `json:"traceId"`
	SpanID            string         `json:"spanId"`
	ParentSpanID      string         `json:"parentSpanId,omitempty"`
	Name              string         `json:"name"`
	StartTimeUnixNano int64          `json:"startTimeUnixNano"`
	EndTimeUnixNano   int64          `json:"endTimeUnixNano,omitempty"`
	Attributes        map[string]any `json:"attributes"`
	Status            string         `json:"status,omitempty"`
}

func (e *OTLPExporter) Export(span Span) {
	payload := otlpSpan{
		TraceID:           span.TraceID,
		SpanID:            span.ID,
		ParentSpanID:      span.ParentID,
		Name:              span.Name,
		StartTimeUnixNano: unixNano(span.StartTime),
		Attributes:        span.Attributes,
		Status:            span.Status,
	}
	if !span.EndTime.IsZero() {
		payload.EndTimeUnixNano = unixNano(span.EndTime)
	}

	body, err := json.Marshal(map[string]any{"resourceSpans": []any{payload}})
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}

	go func() {
		resp, err := e.Client.Do(req)
		if err != nil {
			return
		}
		resp.Body.Close()
	}()
}
