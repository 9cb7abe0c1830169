package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestMiddleware_labels_route_pattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(RequestMiddleware(m))
	r.Get("/api/screens/{screen_id}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/screens/"+id+"/status", nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "/api/screens/{screen_id}/status", "4xx"))
	if got != 3 {
		t.Errorf("expected 3 requests under one route label, got %v", got)
	}
	if n := testutil.ToFloat64(m.errorsTotal); n != 3 {
		t.Errorf("expected 3 errors, got %v", n)
	}
}

func TestMetrics_ingest_counters(t *testing.T) {
	m := New()
	m.IncHeartbeats()
	m.IncHeartbeats()
	m.IncPlaybacks("success")
	m.IncPlaybacks("error")
	m.IncRejected("playback", "invalid_range")

	if n := testutil.ToFloat64(m.heartbeatsTotal); n != 2 {
		t.Errorf("heartbeats: got %v", n)
	}
	if n := testutil.ToFloat64(m.playbacksTotal.WithLabelValues("error")); n != 1 {
		t.Errorf("playbacks{status=error}: got %v", n)
	}
	if n := testutil.ToFloat64(m.ingestRejectedTotal.WithLabelValues("playback", "invalid_range")); n != 1 {
		t.Errorf("rejected: got %v", n)
	}
}

func TestHandler_refreshes_gauges(t *testing.T) {
	m := New()
	h := m.Handler(func() { m.SetOnlineScreens(4) })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "admon_online_screens 4") {
		t.Errorf("expected gauge in scrape output:\n%s", rec.Body.String())
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 201: "2xx", 404: "4xx", 422: "4xx", 500: "5xx", 42: "42"}
	for in, want := range cases {
		if got := statusClass(in); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestIncPlaybacks_bounds_status_labels(t *testing.T) {
	m := New()
	for i := 0; i < 500; i++ {
		m.IncPlaybacks(fmt.Sprintf("junk-%d", i))
	}
	m.IncPlaybacks("success")
	m.IncPlaybacks("")

	n, err := testutil.GatherAndCount(m.Registry(), "admon_playbacks_ingested_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 series (success, other), got %d", n)
	}
	if v := testutil.ToFloat64(m.playbacksTotal.WithLabelValues("other")); v != 501 {
		t.Errorf("other: got %v", v)
	}
}
