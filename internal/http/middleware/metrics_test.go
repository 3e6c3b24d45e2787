package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/chat/conversations/:id", func(c *gin.Context) {
		if got := testutil.ToFloat64(httpInflight); got < 1 {
			t.Errorf("inflight during request = %v", got)
		}
		c.String(http.StatusOK, "{}")
	})
	r.DELETE("/api/chat/conversations/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	route := "/api/chat/conversations/:id"
	baseGet := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200"))
	baseDel := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", route, "204"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))

	for _, rq := range []struct{ method, path string }{
		{http.MethodGet, "/api/chat/conversations/a"},
		{http.MethodGet, "/api/chat/conversations/b"},
		{http.MethodDelete, "/api/chat/conversations/a"},
		{http.MethodGet, "/api/nope/123"},
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(rq.method, rq.path, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200")); got != baseGet+2 {
		t.Fatalf("GET counter = %v; want %v", got, baseGet+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", route, "204")); got != baseDel+1 {
		t.Fatalf("DELETE counter = %v; want %v", got, baseDel+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != base404+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, base404+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight after requests = %v", got)
	}
}

func TestTrackStream(t *testing.T) {
	g := activeStreams.WithLabelValues("ws")
	base := testutil.ToFloat64(g)

	doneA := TrackStream("ws")
	doneB := TrackStream("ws")
	if got := testutil.ToFloat64(g); got != base+2 {
		t.Fatalf("active = %v; want %v", got, base+2)
	}
	doneA()
	doneB()
	if got := testutil.ToFloat64(g); got != base {
		t.Fatalf("active after done = %v; want %v", got, base)
	}
}

func TestCounters_RateLimitedAndReplays(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(1, time.Minute, time.Minute, nil)
	t.Cleanup(rl.Stop)

	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, func(_ context.Context, key, _ string) (bool, error) {
		return key == "seen", nil
	}))
	r.Use(rl.Handler())
	r.POST("/api/chat/messages", func(c *gin.Context) { c.Status(http.StatusOK) })

	baseLimited := testutil.ToFloat64(rateLimited)
	baseReplays := testutil.ToFloat64(idempotentReplays)

	post := func(key string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/chat/messages", nil)
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := post(""); code != http.StatusOK {
		t.Fatalf("first = %d", code)
	}
	if code := post(""); code != http.StatusTooManyRequests {
		t.Fatalf("second = %d; want 429", code)
	}
	if code := post("seen"); code != http.StatusOK {
		t.Fatalf("replay = %d; want 200", code)
	}

	if got := testutil.ToFloat64(rateLimited); got != baseLimited+1 {
		t.Fatalf("rate_limited_total = %v; want %v", got, baseLimited+1)
	}
	if got := testutil.ToFloat64(idempotentReplays); got != baseReplays+1 {
		t.Fatalf("idempotent_replays_total = %v; want %v", got, baseReplays+1)
	}
}
