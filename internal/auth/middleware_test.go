package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	return r
}

func TestMiddlewareSetsUserID(t *testing.T) {
	r := setupRouter()
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set(HeaderUserID, "user_alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != "user_alice" {
		t.Errorf("expected user_alice, got %q", w.Body.String())
	}
}

func TestRequireUserRejectsAnonymous(t *testing.T) {
	r := setupRouter()
	r.GET("/private", RequireUser(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/private", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		provided string
		want     int
	}{
		{"correct secret", "s3cret", "s3cret", http.StatusOK},
		{"wrong secret", "s3cret", "nope", http.StatusForbidden},
		{"missing header", "s3cret", "", http.StatusForbidden},
		{"empty configured secret rejects all", "", "anything", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter()
			r.POST("/admin", RequireAdmin(tt.secret), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest("POST", "/admin", nil)
			if tt.provided != "" {
				req.Header.Set(HeaderAdminSecret, tt.provided)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}
