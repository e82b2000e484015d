package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, quietLogger())

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("Expected burst of 2 to be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("Expected third request to be rejected")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("Expected another client to have its own bucket")
	}
	if rl.Clients() != 2 {
		t.Errorf("Expected 2 tracked clients, got %d", rl.Clients())
	}
}

func TestRateLimiterHandler(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, quietLogger())
	calls := 0
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	remotes := []string{"10.0.0.1:1000", "10.0.0.1:2000"}
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest("GET", "/api/events", nil)
		req.RemoteAddr = remotes[i]
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("Request %d: expected status %d, got %d", i, want, rec.Code)
		}
	}
	if calls != 1 {
		t.Errorf("Expected wrapped handler to run once, ran %d times", calls)
	}
}

func TestClientAddr(t *testing.T) {
	tests := map[string]string{
		"10.0.0.1:1234": "10.0.0.1",
		"[::1]:8080":    "::1",
		"10.0.0.1":      "10.0.0.1",
	}
	for in, want := range tests {
		if got := clientAddr(in); got != want {
			t.Errorf("clientAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeForLogging(t *testing.T) {
	if got := SanitizeForLogging("/api\n/songs\x00\x7f"); got != "/api/songs" {
		t.Errorf("Expected control characters to be stripped, got %q", got)
	}
	long := strings.Repeat("a", MaxLogFieldLength+10)
	if got := SanitizeForLogging(long); len(got) != MaxLogFieldLength+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("Expected truncation to %d characters plus ellipsis", MaxLogFieldLength)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("Expected generated request ID to be echoed, got %q and %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "upstream-42" {
		t.Errorf("Expected upstream request ID to be kept, got %q", seen)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(seen) > maxRequestIDLen {
		t.Error("Expected oversized request ID to be replaced")
	}
}

func TestAccessLogRecordsStatus(t *testing.T) {
	handler := AccessLog(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected status to pass through, got %d", rec.Code)
	}
}
