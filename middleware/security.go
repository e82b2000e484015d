package middleware

import (
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/config"
)

const (
	// DevContentSecurityPolicy relaxes script and connection sources for local tooling.
	DevContentSecurityPolicy = "default-src 'self' 'unsafe-inline' 'unsafe-eval'; connect-src 'self' ws: wss:; img-src 'self' data: blob:;"
	DevXFrameOptions         = "SAMEORIGIN"
)

// SecurityHeaders adds the configured security headers to every response.
// Requests from loopback addresses, or every request when dev mode is on,
// get the relaxed development variants.
type SecurityHeaders struct {
	config config.Security
	logger *logrus.Logger
}

func NewSecurityHeaders(cfg config.Security, logger *logrus.Logger) *SecurityHeaders {
	return &SecurityHeaders{
		config: cfg,
		logger: logger,
	}
}

func (s *SecurityHeaders) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.HeadersEnabled {
			next.ServeHTTP(w, r)
			return
		}

		for name, value := range s.headers(s.isDevModeRequest(r)) {
			if value != "" {
				w.Header().Set(name, value)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *SecurityHeaders) headers(dev bool) map[string]string {
	h := map[string]string{
		"X-Content-Type-Options":  s.config.XContentTypeOptions,
		"X-Frame-Options":         s.config.XFrameOptions,
		"X-XSS-Protection":        s.config.XXSSProtection,
		"Content-Security-Policy": s.config.ContentSecurityPolicy,
		"Referrer-Policy":         s.config.ReferrerPolicy,
	}
	if dev {
		// relaxed values only replace headers that are configured at all
		if h["X-Frame-Options"] != "" {
			h["X-Frame-Options"] = DevXFrameOptions
		}
		if h["Content-Security-Policy"] != "" {
			h["Content-Security-Policy"] = DevContentSecurityPolicy
		}
		return h
	}
	if s.config.TLS {
		h["Strict-Transport-Security"] = s.config.StrictTransportSecurity
	}
	return h
}

func (s *SecurityHeaders) isDevModeRequest(r *http.Request) bool {
	if s.config.DevMode {
		return true
	}
	return isLoopback(r.Host) || isLoopback(r.RemoteAddr)
}

func isLoopback(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}
