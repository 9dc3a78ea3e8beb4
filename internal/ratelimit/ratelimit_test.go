package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newLimiter(rpm, burst int) *Limiter {
	return New(Config{
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Hour, // keep the cleaner out of the way
	})
}

func TestAllowWithinBurst(t *testing.T) {
	l := newLimiter(60, 5)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("user:alice") {
			t.Fatalf("request %d within burst was denied", i+1)
		}
	}
	if l.Allow("user:alice") {
		t.Error("request beyond burst was allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := newLimiter(60, 1)
	defer l.Stop()

	if !l.Allow("user:alice") {
		t.Fatal("first request for alice denied")
	}
	if !l.Allow("user:bob") {
		t.Error("bob should have his own bucket")
	}
}

func TestTokensRefillOverTime(t *testing.T) {
	l := newLimiter(6000, 1) // 100 tokens/sec, so refill is fast
	defer l.Stop()

	if !l.Allow("user:carol") {
		t.Fatal("first request denied")
	}
	if l.Allow("user:carol") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(50 * time.Millisecond)
	if !l.Allow("user:carol") {
		t.Error("bucket did not refill")
	}
}

func TestMiddlewareKeysByUserHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := newLimiter(60, 1)
	defer l.Stop()

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/probe", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	hit := func(user string) int {
		req := httptest.NewRequest("GET", "/probe", nil)
		if user != "" {
			req.Header.Set("X-User-ID", user)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := hit("user_a"); code != http.StatusOK {
		t.Fatalf("first request for user_a: %d", code)
	}
	if code := hit("user_a"); code != http.StatusTooManyRequests {
		t.Errorf("second request for user_a should be limited, got %d", code)
	}
	// A different identity is not affected by user_a's bucket.
	if code := hit("user_b"); code != http.StatusOK {
		t.Errorf("user_b should have a fresh bucket, got %d", code)
	}
}
