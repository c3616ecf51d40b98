package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueAndIdentify(t *testing.T) {
	now := time.Now()
	p := NewTokenProvider("test-secret", time.Hour).WithClock(fixedClock(now))

	token, expires, err := p.Issue("alice", "Alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expires.Equal(now.Add(time.Hour)) {
		t.Errorf("expires = %v, want %v", expires, now.Add(time.Hour))
	}

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }},
		{"query parameter", func(r *http.Request) {
			q := r.URL.Query()
			q.Set(TokenQueryParam, token)
			r.URL.RawQuery = q.Encode()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/sessions/x", nil)
			tt.setup(req)
			id, err := p.Identify(req)
			if err != nil {
				t.Fatalf("Identify: %v", err)
			}
			if id.ID != "alice" || id.DisplayName != "Alice" {
				t.Errorf("identity = %+v", id)
			}
		})
	}
}

func TestIdentifyRejects(t *testing.T) {
	now := time.Now()
	p := NewTokenProvider("test-secret", time.Minute).WithClock(fixedClock(now))
	other := NewTokenProvider("other-secret", time.Minute).WithClock(fixedClock(now))

	valid, _, _ := p.Issue("alice", "Alice")
	forged, _, _ := other.Issue("alice", "Alice")
	expired, _, _ := NewTokenProvider("test-secret", time.Minute).
		WithClock(fixedClock(now.Add(-time.Hour))).
		Issue("alice", "Alice")
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice", Issuer: issuer})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"garbage", "Bearer not-a-token"},
		{"wrong secret", "Bearer " + forged},
		{"expired", "Bearer " + expired},
		{"alg none", "Bearer " + unsigned},
		{"wrong scheme", "Basic " + valid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if _, err := p.Identify(req); !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("Identify err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestIssueGuest(t *testing.T) {
	p := NewTokenProvider("", 0)

	id, token, _, err := p.IssueGuest("")
	if err != nil {
		t.Fatalf("IssueGuest: %v", err)
	}
	if !strings.HasPrefix(id.ID, "guest-") || !strings.HasPrefix(id.DisplayName, "Guest ") {
		t.Errorf("guest identity = %+v", id)
	}
	got, err := p.Verify(token)
	if err != nil || got != id {
		t.Errorf("Verify = %+v, %v; want %+v", got, err, id)
	}

	named, _, _, _ := p.IssueGuest("  Carol ")
	if named.DisplayName != "Carol" {
		t.Errorf("display name = %q, want Carol", named.DisplayName)
	}
}

func TestMiddleware(t *testing.T) {
	p := NewTokenProvider("test-secret", time.Hour)
	token, _, _ := p.Issue("bob", "Bob")

	handler := Middleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok || id.ID != "bob" {
			t.Errorf("context identity = %+v, %v", id, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("authenticated status = %d, want 204", rec.Code)
	}
}
