package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		100: "1xx",
		200: "2xx",
		201: "2xx",
		304: "3xx",
		404: "4xx",
		422: "4xx",
		500: "5xx",
		502: "5xx",
	}
	for code, want := range cases {
		if got := statusBucket(code); got != want {
			t.Errorf("statusBucket(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestMiddlewareRecordsByRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/disputes/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	before := counterValue(t, "atelier_http_requests_total")

	req := httptest.NewRequest("GET", "/disputes/dsp_123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	after := counterValue(t, "atelier_http_requests_total")
	if after <= before {
		t.Error("request counter did not increase")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	DisputesFiledTotal.WithLabelValues("shipping_damaged").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "atelier_disputes_filed_total") {
		t.Error("exposition missing dispute counter")
	}
}

// counterValue scrapes the exposition output and sums entries for one metric.
func counterValue(t *testing.T, name string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	count := 0
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if strings.HasPrefix(line, name) {
			count++
		}
	}
	return count
}
