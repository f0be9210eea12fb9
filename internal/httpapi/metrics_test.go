package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 422: "422", 500: "500"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d)=%q want %q", n, got, want)
		}
	}
}

func TestRoutePatternOrPath(t *testing.T) {
	r := chi.NewRouter()
	var captured string
	r.Get("/models/{name}", func(w http.ResponseWriter, req *http.Request) {
		captured = routePatternOrPath(req)
	})
	req := httptest.NewRequest(http.MethodGet, "/models/abc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	if captured != "/models/{name}" {
		t.Fatalf("pattern=%q", captured)
	}

	plain := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	if got := routePatternOrPath(plain); got != "/nowhere" {
		t.Fatalf("fallback=%q", got)
	}
}

func TestStatusRecorderCapturesCode(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: 200}
	sr.WriteHeader(http.StatusTeapot)
	if sr.status != http.StatusTeapot || rec.Code != http.StatusTeapot {
		t.Fatalf("status=%d rec=%d", sr.status, rec.Code)
	}
	sr.Flush() // recorder implements Flusher; must not panic
}
