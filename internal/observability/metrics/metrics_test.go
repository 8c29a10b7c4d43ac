package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"hedera-swap-plugin/pkg/plugin"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func expectSample(t *testing.T, body, sample string) {
	t.Helper()
	if !strings.Contains(body, sample) {
		t.Fatalf("missing sample %s in:\n%s", sample, body)
	}
}

func TestObserveToolLabelsOutcome(t *testing.T) {
	m := New("test")
	m.ObserveTool("SWAP_HBAR_FOR_TOKEN", plugin.Result{Succeeded: true}, 120*time.Millisecond)
	m.ObserveTool("SWAP_HBAR_FOR_TOKEN", plugin.Result{Code: "LOOKUP_FAILED"}, time.Millisecond)
	m.ObserveTool("SWAP_HBAR_FOR_TOKEN", plugin.Result{}, time.Millisecond)

	body := scrape(t, m)
	expectSample(t, body, `test_tool_invocations_total{method="SWAP_HBAR_FOR_TOKEN",outcome="success"} 1`)
	expectSample(t, body, `test_tool_invocations_total{method="SWAP_HBAR_FOR_TOKEN",outcome="LOOKUP_FAILED"} 1`)
	expectSample(t, body, `test_tool_invocations_total{method="SWAP_HBAR_FOR_TOKEN",outcome="UNKNOWN"} 1`)
	expectSample(t, body, `test_tool_duration_seconds_count{method="SWAP_HBAR_FOR_TOKEN"} 3`)
}

func TestObserveMirrorTransportError(t *testing.T) {
	m := New("test")
	m.ObserveMirror("tokens", 0, time.Millisecond)
	m.ObserveMirror("tokens", 200, time.Millisecond)

	body := scrape(t, m)
	expectSample(t, body, `test_mirror_lookups_total{endpoint="tokens",status="error"} 1`)
	expectSample(t, body, `test_mirror_lookups_total{endpoint="tokens",status="200"} 1`)
	expectSample(t, body, `test_mirror_lookup_latency_seconds_count{endpoint="tokens"} 2`)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New("test")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/jobs/abc")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	expectSample(t, scrape(t, m), `test_http_requests_total{code="404",method="GET",route="/api/v1/jobs/{id}"} 1`)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New("test"), New("test")
	a.ObserveJob("SWAP_HBAR_FOR_TOKEN", "succeeded")
	if strings.Contains(scrape(t, b), "test_jobs_completed_total{") {
		t.Fatal("sample leaked across registries")
	}
	expectSample(t, scrape(t, a), `test_jobs_completed_total{method="SWAP_HBAR_FOR_TOKEN",status="succeeded"} 1`)
}
