package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/connectmydoc/patients/internal/config"
	"github.com/connectmydoc/patients/internal/domain/patient"
	"github.com/connectmydoc/patients/internal/platform/db"
	"github.com/connectmydoc/patients/internal/platform/middleware"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "test",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		BodyLimit:      "1M",
		RequestTimeout: 5 * time.Second,
	}
}

func testRouter(ready echo.HandlerFunc) *echo.Echo {
	svc := patient.NewService(nil, nil, nil, nil, patient.NewHelper(nil, "US"))
	cfg := testConfig()
	return newRouter(cfg, zerolog.Nop(), patient.NewHandler(svc), ready, middleware.NewRateLimiter(rateLimitConfig(cfg)))
}

func TestRateLimitConfig(t *testing.T) {
	rl := rateLimitConfig(testConfig())
	if rl.RequestsPerSecond != 100 || rl.BurstSize != 100 {
		t.Errorf("expected configured limits, got %+v", rl)
	}
	if rl.IdleTTL != middleware.DefaultRateLimitConfig().IdleTTL {
		t.Errorf("expected default idle TTL, got %v", rl.IdleTTL)
	}

	def := rateLimitConfig(&config.Config{})
	if def != middleware.DefaultRateLimitConfig() {
		t.Errorf("expected defaults for an empty config, got %+v", def)
	}
}

func TestRouter_Health(t *testing.T) {
	e := testRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestRouter_Ready(t *testing.T) {
	called := false
	e := testRouter(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusServiceUnavailable)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if !called || rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected readiness handler to answer 503, got %d", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	e := testRouter(nil)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Error("expected http_requests_total in metrics output")
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	e := testRouter(nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRouter_InvalidPatientID(t *testing.T) {
	e := testRouter(nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid id") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "001_patient_core.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_next.sql"},
	})

	out := buf.String()
	if !strings.Contains(out, "applied") || !strings.Contains(out, "2024-03-01 12:30:00") {
		t.Errorf("expected applied migration with timestamp, got:\n%s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("expected pending migration, got:\n%s", out)
	}
}

func TestMigrateCmd_Subcommands(t *testing.T) {
	cmd := migrateCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	if !names["up"] || !names["status"] {
		t.Errorf("expected up and status subcommands, got %v", names)
	}
}
