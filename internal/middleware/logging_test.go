package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecureLogger_RedactsTokens(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := SecureLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest("GET", "/api/v1/auth/verify-email?token=eyJhbGciOi.secret.sig&lang=en", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "eyJhbGciOi") {
		t.Fatalf("token leaked into log: %s", out)
	}

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if record["msg"] != "http_request" {
		t.Errorf("unexpected msg %v", record["msg"])
	}
	if record["level"] != "WARN" {
		t.Errorf("expected WARN for a 400, got %v", record["level"])
	}
	if status, _ := record["status"].(float64); status != http.StatusBadRequest {
		t.Errorf("expected status 400, got %v", record["status"])
	}
	if path, _ := record["path"].(string); !strings.Contains(path, "lang=en") || !strings.Contains(path, "token=REDACTED") {
		t.Errorf("unexpected path %q", path)
	}
}

func TestSecureLogger_DefaultsStatusToOK(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := SecureLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if status, _ := record["status"].(float64); status != http.StatusOK {
		t.Errorf("expected status 200, got %v", record["status"])
	}
	if record["path"] != "/health" {
		t.Errorf("unexpected path %v", record["path"])
	}
}
