package healthprobe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	err := json.Unmarshal(rec.Body.Bytes(), &resp)
	if err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func serve(handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNew(t *testing.T) {
	hc := New()

	if time.Since(hc.startTime) > 1*time.Second {
		t.Errorf("Start time is too old: %v", hc.startTime)
	}
	if hc.ready.Load() {
		t.Error("New() should not be ready initially")
	}
}

func TestSetReady_Toggle(t *testing.T) {
	hc := New()

	hc.SetReady(true)
	if !hc.ready.Load() {
		t.Error("expected ready after SetReady(true)")
	}

	hc.SetReady(false)
	if hc.ready.Load() {
		t.Error("expected not ready after SetReady(false)")
	}
}

func TestHealth_AlwaysReturnsOK(t *testing.T) {
	tests := []struct {
		name     string
		setReady bool
	}{
		{name: "not_ready", setReady: false},
		{name: "ready", setReady: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := New()
			hc.SetReady(tt.setReady)

			rec := serve(hc.Health(), "/health")
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if resp := decode(t, rec); resp.Status != "healthy" {
				t.Errorf("status = %q, want healthy", resp.Status)
			}
		})
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		setReady   bool
		checks     map[string]CheckFunc
		wantCode   int
		wantStatus string
	}{
		{
			name:       "starting",
			setReady:   false,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
		{
			name:       "ready_without_checks",
			setReady:   true,
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:     "ready_with_passing_checks",
			setReady: true,
			checks: map[string]CheckFunc{
				"rpc":   func(context.Context) error { return nil },
				"redis": func(context.Context) error { return nil },
			},
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:     "failing_check",
			setReady: true,
			checks: map[string]CheckFunc{
				"rpc":   func(context.Context) error { return errors.New("dial tcp: connection refused") },
				"redis": func(context.Context) error { return nil },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := New()
			hc.SetReady(tt.setReady)
			for name, check := range tt.checks {
				hc.AddCheck(name, check)
			}

			rec := serve(hc.Ready(), "/ready")
			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			resp := decode(t, rec)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if len(tt.checks) > 0 && len(resp.Checks) != len(tt.checks) {
				t.Errorf("checks = %v, want %d entries", resp.Checks, len(tt.checks))
			}
		})
	}
}

func TestReady_ReportsFailingCheck(t *testing.T) {
	hc := New()
	hc.SetReady(true)
	hc.AddCheck("postgres", func(context.Context) error { return errors.New("timeout") })

	resp := decode(t, serve(hc.Ready(), "/ready"))
	if resp.Message != "postgres check failed" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Checks["postgres"] != "timeout" {
		t.Errorf("checks[postgres] = %q, want timeout", resp.Checks["postgres"])
	}
}
