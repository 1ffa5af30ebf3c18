package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func authedHandler(t *testing.T, secret []byte) http.Handler {
	t.Helper()
	return RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	token, expiresAt, err := GenerateAdminToken(testSecret, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("token already expired")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authedHandler(t, testSecret).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestRequireAuthRejections(t *testing.T) {
	validToken, _, err := GenerateAdminToken(testSecret, "admin")
	if err != nil {
		t.Fatal(err)
	}
	otherSecret := []byte("ffffffffffffffffffffffffffffffff")
	foreignToken, _, err := GenerateAdminToken(otherSecret, "admin")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic " + validToken},
		{"garbage token", "Bearer garbage"},
		{"wrong secret", "Bearer " + foreignToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			authedHandler(t, testSecret).ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	rl := NewIPRateLimiter(RateLimitConfig{
		Rate:            rate.Limit(1),
		Burst:           2,
		CleanupInterval: time.Minute,
		MaxAge:          time.Minute,
	})
	defer rl.Stop()

	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests blocked: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", statuses[2])
	}

	// A different IP has its own budget.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other IP blocked: %d", rec.Code)
	}
}
