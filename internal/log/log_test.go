package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: slog.LevelDebug, Component: component, Output: &buf}), &buf
}

func TestLogger_TagsComponent(t *testing.T) {
	logger, buf := newBufferLogger(ComponentEMI)

	logger.Info("hello", FieldEMIID, "emi-1")

	out := buf.String()
	if !strings.Contains(out, "component=emi") || !strings.Contains(out, "emi_id=emi-1") {
		t.Errorf("unexpected log line: %s", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Errorf("component logged more than once: %s", out)
	}
}

func TestLogger_ExplicitComponentWins(t *testing.T) {
	logger, buf := newBufferLogger(ComponentApp)

	logger.Warn("overridden", FieldComponent, ComponentHTTP)

	out := buf.String()
	if !strings.Contains(out, "component=http") || strings.Contains(out, "component=app") {
		t.Errorf("unexpected log line: %s", out)
	}
}

func TestLogger_WithComponent(t *testing.T) {
	logger, buf := newBufferLogger(ComponentApp)

	child := logger.WithComponent(ComponentLedger)
	child.Error("boom")

	if child.Component() != ComponentLedger || logger.Component() != ComponentApp {
		t.Fatalf("components: child=%s parent=%s", child.Component(), logger.Component())
	}
	if !strings.Contains(buf.String(), "component=ledger") {
		t.Errorf("unexpected log line: %s", buf.String())
	}
}

func TestLevelForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{200, slog.LevelInfo},
		{201, slog.LevelInfo},
		{404, slog.LevelWarn},
		{429, slog.LevelWarn},
		{500, slog.LevelError},
		{503, slog.LevelError},
	}
	for _, tt := range tests {
		if got := LevelForStatus(tt.status); got != tt.want {
			t.Errorf("LevelForStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMiddleware_InjectsLogger(t *testing.T) {
	logger, buf := newBufferLogger(ComponentHTTP)

	var got *Logger
	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			got.Info("inside")
		})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/emis", nil))

	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("expected context logger, got %+v", got)
	}
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("request id missing: %s", buf.String())
	}
}

func TestFromContext_Default(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Errorf("unexpected fallback logger %+v", l)
	}
}

func TestStructuredLogger(t *testing.T) {
	logger, buf := newBufferLogger(ComponentApp)
	sl := NewStructuredLogger(logger)
	ctx := context.Background()
	r := httptest.NewRequest(http.MethodPost, "/api/emis/1/pay?x=1", nil)

	sl.LogHTTPStart(ctx, r, "req-1", "10.0.0.1")
	sl.LogHTTPEnd(ctx, r, "req-1", http.StatusConflict, 12, "10.0.0.1")
	sl.LogEMIPaid(ctx, "u1", "emi-1", "Phone Loan", "active", 1, "tx-1", "1000")
	sl.LogError(ctx, "write failed", errors.New("disk full"), ComponentStorage, OpUpdate, nil)

	out := buf.String()
	for _, want := range []string{
		"HTTP request started",
		"level=WARN msg=\"HTTP request completed\"",
		"status_code=409",
		"emi_name=\"Phone Loan\"",
		"transaction_id=tx-1",
		"error=\"disk full\"",
		"operation=update",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}
