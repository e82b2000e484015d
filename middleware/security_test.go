package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/config"
)

func productionSecurity() config.Security {
	return config.Security{
		HeadersEnabled:          true,
		XContentTypeOptions:     "nosniff",
		XFrameOptions:           "DENY",
		XXSSProtection:          "1; mode=block",
		StrictTransportSecurity: "max-age=31536000; includeSubDomains",
		ContentSecurityPolicy:   "default-src 'self'",
		ReferrerPolicy:          "strict-origin-when-cross-origin",
	}
}

func serve(t *testing.T, cfg config.Security, req *http.Request) http.Header {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	handler := NewSecurityHeaders(cfg, logger).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Test-Header", "test-value")
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Test-Header") != "test-value" {
		t.Error("Expected wrapped handler to be called")
	}
	return rec.Header()
}

func TestSecurityHeadersDisabled(t *testing.T) {
	cfg := productionSecurity()
	cfg.HeadersEnabled = false

	headers := serve(t, cfg, httptest.NewRequest("GET", "/api/songs/1/similar", nil))

	for _, name := range []string{"X-Content-Type-Options", "X-Frame-Options", "X-XSS-Protection", "Content-Security-Policy"} {
		if headers.Get(name) != "" {
			t.Errorf("Expected no %s header when security headers disabled", name)
		}
	}
}

func TestSecurityHeadersProductionMode(t *testing.T) {
	headers := serve(t, productionSecurity(), httptest.NewRequest("GET", "/api/songs/1/similar", nil))

	expected := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
	}
	for name, want := range expected {
		if got := headers.Get(name); got != want {
			t.Errorf("Expected %s %q, got %q", name, want, got)
		}
	}
	if headers.Get("Strict-Transport-Security") != "" {
		t.Error("Expected no HSTS header without TLS")
	}
}

func TestSecurityHeadersHSTSWithTLS(t *testing.T) {
	cfg := productionSecurity()
	cfg.TLS = true

	headers := serve(t, cfg, httptest.NewRequest("GET", "/", nil))
	if got := headers.Get("Strict-Transport-Security"); got != cfg.StrictTransportSecurity {
		t.Errorf("Expected HSTS %q, got %q", cfg.StrictTransportSecurity, got)
	}
}

func TestSecurityHeadersDevMode(t *testing.T) {
	cfg := productionSecurity()
	cfg.DevMode = true
	cfg.TLS = true

	headers := serve(t, cfg, httptest.NewRequest("GET", "/", nil))

	if got := headers.Get("X-Frame-Options"); got != DevXFrameOptions {
		t.Errorf("Expected dev X-Frame-Options %q, got %q", DevXFrameOptions, got)
	}
	if got := headers.Get("Content-Security-Policy"); got != DevContentSecurityPolicy {
		t.Errorf("Expected dev CSP, got %q", got)
	}
	if got := headers.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("Expected nosniff in dev mode, got %q", got)
	}
	if headers.Get("Strict-Transport-Security") != "" {
		t.Error("Expected no HSTS header in dev mode")
	}
}

func TestSecurityHeadersLocalhostDetection(t *testing.T) {
	tests := []struct {
		name       string
		host       string
		remoteAddr string
		dev        bool
	}{
		{"localhost host", "localhost:8080", "192.0.2.1:1234", true},
		{"loopback remote", "example.com", "127.0.0.1:5555", true},
		{"ipv6 loopback host", "[::1]:8080", "192.0.2.1:1234", true},
		{"unspecified host", "0.0.0.0:8080", "192.0.2.1:1234", true},
		{"remote client", "example.com", "192.0.2.1:1234", false},
		{"lookalike host", "localhost.example.com", "192.0.2.1:1234", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.Host = tt.host
			req.RemoteAddr = tt.remoteAddr

			headers := serve(t, productionSecurity(), req)
			isDev := headers.Get("X-Frame-Options") == DevXFrameOptions
			if isDev != tt.dev {
				t.Errorf("Expected dev mode %v for host %q remote %q", tt.dev, tt.host, tt.remoteAddr)
			}
		})
	}
}

func TestSecurityHeadersEmptyValuesSkipped(t *testing.T) {
	cfg := config.Security{HeadersEnabled: true, XContentTypeOptions: "nosniff"}
	req := httptest.NewRequest("GET", "/", nil)
	req.Host = "localhost"

	headers := serve(t, cfg, req)
	if headers.Get("X-Frame-Options") != "" || headers.Get("Content-Security-Policy") != "" {
		t.Error("Expected unconfigured headers to stay unset in dev mode")
	}
	if headers.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected configured header to be set")
	}
}
