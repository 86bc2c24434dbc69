package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func opsRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/v1/matches/{postingID}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "postingID") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return r
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := opsRouter()
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/matches/{postingID}", "200"))

	for _, id := range []string{"X1", "X2", "X3"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/matches/"+id, http.NoBody))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	}

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/matches/{postingID}", "200"))
	if got-before != 3 {
		t.Errorf("expected 3 requests under the route pattern, got %v", got-before)
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected duration observations")
	}
}

func TestMiddleware_StatusCodes(t *testing.T) {
	r := opsRouter()

	tests := []struct {
		path   string
		route  string
		status string
	}{
		{"/v1/matches/missing", "/v1/matches/{postingID}", "404"},
		{"/healthz", "/healthz", "503"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", tc.route, tc.status))
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, http.NoBody))
			after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", tc.route, tc.status))
			if after-before != 1 {
				t.Errorf("expected one %s request on %s, got %v", tc.status, tc.route, after-before)
			}
		})
	}
}

func TestRouteLabel_NoRouteContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/anything", http.NoBody)
	if got := routeLabel(req); got != "unmatched" {
		t.Errorf("expected unmatched, got %q", got)
	}
}

func TestRegisterMetrics_Idempotent(t *testing.T) {
	RegisterHTTPMetrics()
	RegisterHTTPMetrics()
	RegisterEmbeddingMetrics()
	RegisterEmbeddingMetrics()
	RegisterMatchingMetrics()
	RegisterMatchingMetrics()
}
