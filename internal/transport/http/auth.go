package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the caller's role as resolved by the identity collaborator.
type Role string

const (
	RoleLearner    Role = "learner"
	RoleInstructor Role = "instructor"
)

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	Role    Role
}

func (id Identity) Instructor() bool { return id.Role == RoleInstructor }

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Claims carries the subject and role in an HS256 token.
type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer tokens. With an empty secret it trusts the X-User-ID and
// X-User-Role headers instead, which is only meant for local development and tests.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// IssueToken signs a token for sub. Used by the CLI and tests.
func (a *Authenticator) IssueToken(sub string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:  sub,
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(token string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Sub == "" {
		return Identity{}, errors.New("invalid token claims")
	}
	return Identity{Subject: claims.Sub, Role: normalizeRole(claims.Role)}, nil
}

func (a *Authenticator) devMode() bool { return len(a.secret) == 0 }

// Middleware resolves the caller identity or answers 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.devMode() {
			sub := strings.TrimSpace(r.Header.Get("X-User-ID"))
			if sub == "" {
				sub = r.URL.Query().Get("userId")
			}
			if sub == "" {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing X-User-ID")
				return
			}
			id := Identity{Subject: sub, Role: normalizeRole(r.Header.Get("X-User-Role"))}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
			return
		}

		token := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else {
			// browsers cannot set headers on websocket upgrades
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		id, err := a.Parse(token)
		if err != nil {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "bad token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// RequireInstructor rejects non-instructors with 403.
func RequireInstructor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.Instructor() {
			writeProblem(w, http.StatusForbidden, "forbidden", "instructor role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func normalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "instructor", "teacher", "admin":
		return RoleInstructor
	default:
		return RoleLearner
	}
}
