package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	ts := httptest.NewServer(promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()

	m.RecordSearch(SearchOK, 7, 1500*time.Millisecond)
	m.RecordSearch(SearchFailed, 0, 30*time.Second)
	m.RecordKept(true)
	m.RecordKept(false)
	m.RecordKept(false)
	m.RecordDuplicate()
	m.RecordDelivery(DeliverySent)
	m.RecordRun(42*time.Second, true, time.Unix(1700000000, 0))

	output := scrape(t, m)

	for _, want := range []string{
		`jobdigest_search_requests_total{status="ok"} 1`,
		`jobdigest_search_requests_total{status="failed"} 1`,
		`jobdigest_search_duration_seconds_bucket`,
		`jobdigest_search_results_total 7`,
		`jobdigest_records_total{official_site="true"} 1`,
		`jobdigest_records_total{official_site="false"} 2`,
		`jobdigest_duplicates_dropped_total 1`,
		`jobdigest_deliveries_total{outcome="sent"} 1`,
		`jobdigest_run_duration_seconds 42`,
		`jobdigest_last_success_timestamp_seconds 1.7e+09`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}

func TestMetrics_FailedRunKeepsLastSuccess(t *testing.T) {
	m := New()
	m.RecordRun(time.Second, false, time.Unix(1700000000, 0))

	output := scrape(t, m)
	if !strings.Contains(output, "jobdigest_last_success_timestamp_seconds 0") {
		t.Errorf("expected last success to stay unset after a failed run")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordSearch(SearchOK, 1, time.Second)
	m.RecordKept(true)
	m.RecordDuplicate()
	m.RecordDelivery(DeliverySkipped)
	m.RecordRun(time.Second, true, time.Now())
	if err := m.Push(context.Background(), "http://127.0.0.1:1", "jobdigest"); err != nil {
		t.Errorf("nil metrics should not push: %v", err)
	}
}

func TestMetrics_Push(t *testing.T) {
	var method, path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	m := New()
	m.RecordDelivery(DeliverySent)

	if err := m.Push(context.Background(), ts.URL, "jobdigest"); err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("expected PUT, got %s", method)
	}
	if path != "/metrics/job/jobdigest" {
		t.Errorf("unexpected push path %s", path)
	}
}

func TestMetrics_PushError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	m := New()
	if err := m.Push(context.Background(), ts.URL, "jobdigest"); err == nil {
		t.Fatal("expected error from failing gateway")
	}
}

func TestMetrics_PushDisabled(t *testing.T) {
	m := New()
	if err := m.Push(context.Background(), "", "jobdigest"); err != nil {
		t.Fatalf("empty url should be a no-op: %v", err)
	}
}
