package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestNewRateLimiter(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		mw, err := NewRateLimiter(10, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if mw == nil {
			t.Fatal("expected non-nil middleware")
		}
	})

	t.Run("invalid period", func(t *testing.T) {
		_, err := NewRateLimiter(10, 0)
		if err == nil {
			t.Fatal("expected error for invalid period")
		}
		if _, err := NewRateLimiter(0, time.Minute); err == nil {
			t.Fatal("expected error for zero requests")
		}
	})

	t.Run("requests within limit succeed", func(t *testing.T) {
		mw, err := NewRateLimiter(5, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		r := gin.New()
		r.Use(mw)
		r.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

		// Make requests within the limit
		for i := 0; i < 5; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/test", nil)
			req.RemoteAddr = "127.0.0.1:12345"
			r.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("request %d: expected status 200, got %d", i+1, w.Code)
			}
		}
	})

	t.Run("requests exceeding limit rejected", func(t *testing.T) {
		mw, err := NewRateLimiter(2, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		r := gin.New()
		r.Use(mw)
		r.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

		// Exhaust the limit
		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/test", nil)
			req.RemoteAddr = "10.0.0.1:12345"
			r.ServeHTTP(w, req)
		}

		// Next request should be rate limited
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		r.ServeHTTP(w, req)

		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("expected status 429, got %d", w.Code)
		}
	})

	t.Run("different IPs have separate limits", func(t *testing.T) {
		mw, err := NewRateLimiter(1, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		r := gin.New()
		r.Use(mw)
		r.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

		// First IP uses its limit
		w1 := httptest.NewRecorder()
		req1, _ := http.NewRequest("GET", "/test", nil)
		req1.RemoteAddr = "192.168.1.1:12345"
		r.ServeHTTP(w1, req1)
		if w1.Code != http.StatusOK {
			t.Fatalf("first IP: expected status 200, got %d", w1.Code)
		}

		// Second IP should still work
		w2 := httptest.NewRecorder()
		req2, _ := http.NewRequest("GET", "/test", nil)
		req2.RemoteAddr = "192.168.1.2:12345"
		r.ServeHTTP(w2, req2)
		if w2.Code != http.StatusOK {
			t.Fatalf("second IP: expected status 200, got %d", w2.Code)
		}
	})

	t.Run("organizations share one budget across IPs", func(t *testing.T) {
		mw, err := NewRateLimiter(1, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		r := gin.New()
		r.Use(mw)
		r.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

		codes := []int{}
		for _, ip := range []string{"192.168.1.1:1", "192.168.1.2:1"} {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/test", nil)
			req.RemoteAddr = ip
			req.Header.Set(OrgIDHeader, "7d7c2a3e-9f55-4a5e-9f0a-0c2b8f7b1f11")
			r.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}

		if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
			t.Fatalf("expected [200 429], got %v", codes)
		}
	})
}
