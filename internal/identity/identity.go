// Package identity resolves the caller of a request to a participant
// identity. The match core trusts whatever a Provider returns.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is how long an issued token stays valid
	DefaultTokenTTL = 24 * time.Hour

	// TokenQueryParam carries a token for websocket upgrades, where browsers
	// cannot set headers
	TokenQueryParam = "token"

	issuer = "paddle-arena"
)

// ErrUnauthenticated is returned when a request carries no valid token
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is an authenticated participant
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Provider resolves the identity behind a request
type Provider interface {
	Identify(r *http.Request) (Identity, error)
}

// claims is the signed token body
type claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// TokenProvider verifies and issues HS256 tokens
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenProvider creates a provider signing with secret. An empty secret
// gets a random per-process key, so tokens do not survive a restart.
func NewTokenProvider(secret string, ttl time.Duration) *TokenProvider {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("identity: generate signing key: %v", err))
		}
		log.Printf("⚠️ IDENTITY_SECRET not set, using an ephemeral signing key")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenProvider{secret: key, ttl: ttl, now: time.Now}
}

// WithClock overrides the provider clock (tests)
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	p.now = now
	return p
}

// Issue signs a token for id
func (p *TokenProvider) Issue(id, displayName string) (string, time.Time, error) {
	if strings.TrimSpace(id) == "" {
		return "", time.Time{}, fmt.Errorf("identity id is required")
	}
	now := p.now()
	expires := now.Add(p.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// IssueGuest mints a fresh guest identity and its token
func (p *TokenProvider) IssueGuest(displayName string) (Identity, string, time.Time, error) {
	id := "guest-" + uuid.NewString()
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "Guest " + id[len("guest-"):len("guest-")+4]
	}
	token, expires, err := p.Issue(id, name)
	if err != nil {
		return Identity{}, "", time.Time{}, err
	}
	return Identity{ID: id, DisplayName: name}, token, expires, nil
}

// Verify parses a signed token
func (p *TokenProvider) Verify(raw string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return Identity{ID: c.Subject, DisplayName: c.Name}, nil
}

// Identify reads a bearer token from the Authorization header, falling
// back to the token query parameter
func (p *TokenProvider) Identify(r *http.Request) (Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		raw = r.URL.Query().Get(TokenQueryParam)
	}
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: no token", ErrUnauthenticated)
	}
	return p.Verify(raw)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

type contextKey struct{}

// NewContext attaches id to ctx
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by Middleware
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Middleware rejects unauthenticated requests with 401 and stores the
// identity in the request context otherwise
func Middleware(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := p.Identify(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":   "unauthorized",
					"message": "A valid identity token is required",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
		})
	}
}
