package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/infra/logging"
)

// SessionClaims is the subset of a Supabase access token this service reads.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 session tokens signed with the project JWT secret.
type Authenticator struct {
	secret   []byte
	audience string
	now      func() time.Time
}

func NewAuthenticator(secret, audience string) *Authenticator {
	return &Authenticator{secret: []byte(secret), audience: audience, now: time.Now}
}

// Verify returns the claims of a valid token; the user id is the subject.
func (a *Authenticator) Verify(tok string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	claims := &SessionClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return nil, domain.ErrUnauthorized
	}
	if claims.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Mint signs a token for userID. Used by tests and local tooling.
func (a *Authenticator) Mint(userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := SessionClaims{
		Role: "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

type userCtxKey struct{}

// RequireUser rejects requests without a valid bearer token.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearer(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		claims, err := a.Verify(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
			return
		}
		ctx := context.WithValue(r.Context(), userCtxKey{}, claims.Subject)
		ctx = logging.WithUserID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the authenticated user id set by RequireUser.
func UserID(ctx context.Context) (string, error) {
	if v, ok := ctx.Value(userCtxKey{}).(string); ok && v != "" {
		return v, nil
	}
	return "", errors.New("no authenticated user")
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}
