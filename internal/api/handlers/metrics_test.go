package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MacJediWizard/slawatch/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(_ context.Context) error {
	return p.err
}

func setupMetricsTestRouter(t *testing.T, reg *prometheus.Registry) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewMetricsHandler(reg, zerolog.Nop()).RegisterPublicRoutes(r)
	return r
}

func TestMetrics(t *testing.T) {
	t.Run("exposes pipeline metrics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m, err := metrics.NewPrometheusMetrics(reg)
		if err != nil {
			t.Fatalf("failed to create metrics: %v", err)
		}
		m.RecordCycle("success", time.Second)
		m.RecordViolation("response")

		r := setupMetricsTestRouter(t, reg)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/metrics", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		body := w.Body.String()
		if !strings.Contains(body, `slawatch_monitor_cycles_total{outcome="success"} 1`) {
			t.Fatalf("expected cycle counter, got:\n%s", body)
		}
		if !strings.Contains(body, `slawatch_violations_detected_total{violation_type="response"} 1`) {
			t.Fatalf("expected violation counter, got:\n%s", body)
		}
		if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
			t.Fatalf("expected text/plain content type, got %q", ct)
		}
	})

	t.Run("reports database up state", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewUpGauge("database", stubPinger{err: errors.New("db down")}, time.Second))

		r := setupMetricsTestRouter(t, reg)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/metrics", nil)
		r.ServeHTTP(w, req)

		if !strings.Contains(w.Body.String(), `slawatch_up{component="database"} 0`) {
			t.Fatalf("expected database unhealthy metric, got:\n%s", w.Body.String())
		}
	})

	t.Run("healthy component", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewUpGauge("database", stubPinger{}, time.Second))

		r := setupMetricsTestRouter(t, reg)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/metrics", nil)
		r.ServeHTTP(w, req)

		if !strings.Contains(w.Body.String(), `slawatch_up{component="database"} 1`) {
			t.Fatalf("expected database healthy metric, got:\n%s", w.Body.String())
		}
	})
}
