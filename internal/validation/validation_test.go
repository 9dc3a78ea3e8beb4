package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidID(t *testing.T) {
	valid := []string{"dsp_abc123", "order_42", "user-1", "a", strings.Repeat("x", 64)}
	for _, id := range valid {
		if !IsValidID(id) {
			t.Errorf("IsValidID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "dsp abc", "id/with/slash", "dsp_abc;drop", strings.Repeat("x", 65), "émoji"}
	for _, id := range invalid {
		if IsValidID(id) {
			t.Errorf("IsValidID(%q) = true, want false", id)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  padded  ", 100); got != "padded" {
		t.Errorf("whitespace not trimmed: %q", got)
	}
	if got := SanitizeString("with\x00null", 100); got != "withnull" {
		t.Errorf("null byte not removed: %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("length not capped: %q", got)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	errs := Validate(
		Required("category", ""),
		MinLength("description", "short", 20),
		ValidID("orderId", "bad id"),
		PositiveAmount("amountCents", 0),
	)
	if len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "category" {
		t.Errorf("first error field = %q", errs[0].Field)
	}

	none := Validate(
		Required("category", "shipping_damaged"),
		MinLength("description", strings.Repeat("y", 20), 20),
		ValidID("orderId", "order_1"),
		PositiveAmount("amountCents", 500),
	)
	if len(none) != 0 {
		t.Errorf("expected no errors, got %v", none)
	}
}

func TestValidIDSkipsEmpty(t *testing.T) {
	// Presence is Required's job.
	if err := ValidID("orderId", "")(); err != nil {
		t.Errorf("ValidID on empty value should pass, got %v", err)
	}
}

func TestIDParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IDParamMiddleware())
	r.GET("/disputes/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("GET", "/disputes/dsp_abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("well-formed ID rejected: %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/disputes/bad%3Bid", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed ID accepted: %d", w.Code)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(16))
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too_large"})
			return
		}
		c.JSON(http.StatusOK, body)
	})

	req := httptest.NewRequest("POST", "/echo", strings.NewReader(`{"a":1}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("small body rejected: %d", w.Code)
	}

	big := `{"a":"` + strings.Repeat("x", 100) + `"}`
	req = httptest.NewRequest("POST", "/echo", strings.NewReader(big))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body accepted: %d", w.Code)
	}
}
