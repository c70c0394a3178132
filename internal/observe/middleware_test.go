package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func instrumented(t *testing.T, status int) (http.Handler, *Metrics, func() metricdata.ResourceMetrics) {
	t.Helper()
	m, reader := newTestMetrics(t)
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	return h, m, func() metricdata.ResourceMetrics { return collect(t, reader) }
}

func TestMiddleware_TagsRequestWithTrace(t *testing.T) {
	exp := withTestTracer(t)
	h, _, _ := instrumented(t, http.StatusOK)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	id := rec.Header().Get("X-Correlation-ID")
	if len(id) != 32 {
		t.Fatalf("X-Correlation-ID = %q, want a 32-char trace ID", id)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /metrics" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[0].SpanContext.TraceID().String() != id {
		t.Error("header trace ID does not match the recorded span")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	withTestTracer(t)
	h, _, _ := instrumented(t, http.StatusOK)

	const upstream = "8e7f4c1ba2d94f0e9c3a5b6d7e8f9a0b"
	req := httptest.NewRequest("GET", "/readyz", nil)
	req.Header.Set("traceparent", "00-"+upstream+"-00f067aa0ba902b7-01")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != upstream {
		t.Errorf("correlation ID = %q, want the upstream trace ID %q", got, upstream)
	}
}

func TestMiddleware_RecordsDurationPerRoute(t *testing.T) {
	withTestTracer(t)
	h, _, snapshot := instrumented(t, http.StatusOK)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))

	met := findMetric(snapshot(), "troubadour.http.request.duration")
	if met == nil {
		t.Fatal("request duration histogram not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1 (single method+path series)", len(hist.DataPoints))
	}

	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("sample count = %d, want 2", dp.Count)
	}
	var path string
	for _, kv := range dp.Attributes.ToSlice() {
		if string(kv.Key) == "path" {
			path = kv.Value.AsString()
		}
	}
	if path != "/healthz" {
		t.Errorf("path attribute = %q, want /healthz", path)
	}
}

func TestMiddleware_SpanCarriesResponseStatus(t *testing.T) {
	exp := withTestTracer(t)
	h, _, _ := instrumented(t, http.StatusServiceUnavailable)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != 503 {
		t.Errorf("span status attribute = %d, want 503", status)
	}
}
