package daemon

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"facelane/internal/config"
	"facelane/internal/services"
)

// AnonymousOwner owns jobs created without credentials.
const AnonymousOwner = "anonymous"

// ownerHeader names the end user when a trusted front end authenticates with
// the shared API token.
const ownerHeader = "X-Owner-ID"

var errUnauthorized = errors.New("unauthorized")

// authenticator resolves the owner id of a request. Bearer tokens are
// verified as HS256 JWTs when a secret is configured; the static API token
// may be presented as a bearer token or in X-API-Key.
type authenticator struct {
	token       string
	jwtSecret   []byte
	jwtRequired bool
}

func newAuthenticator(cfg config.API) authenticator {
	a := authenticator{token: cfg.Token, jwtRequired: cfg.JWTRequired}
	if cfg.JWTSecret != "" {
		a.jwtSecret = []byte(cfg.JWTSecret)
	}
	return a
}

func (a authenticator) owner(r *http.Request) (string, error) {
	bearer := bearerToken(r.Header.Get("Authorization"))
	if bearer != "" && len(a.jwtSecret) > 0 && !a.matchesToken(bearer) {
		return a.verifyJWT(bearer)
	}
	if a.token != "" {
		presented := bearer
		if presented == "" {
			presented = strings.TrimSpace(r.Header.Get("X-API-Key"))
		}
		if !a.matchesToken(presented) {
			return "", fmt.Errorf("%w: invalid api token", errUnauthorized)
		}
		if owner := strings.TrimSpace(r.Header.Get(ownerHeader)); owner != "" {
			return owner, nil
		}
		return AnonymousOwner, nil
	}
	if a.jwtRequired {
		return "", fmt.Errorf("%w: missing bearer token", errUnauthorized)
	}
	return AnonymousOwner, nil
}

func (a authenticator) matchesToken(value string) bool {
	if a.token == "" || value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(value), []byte(a.token)) == 1
}

// verifyJWT accepts HS256 tokens only and reads the owner from sub, falling
// back to a user_id claim.
func (a authenticator) verifyJWT(raw string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: invalid token: %w", errUnauthorized, err)
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	}
	return "", fmt.Errorf("%w: token missing subject", errUnauthorized)
}

func bearerToken(header string) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// authenticate rejects unauthenticated requests and stores the owner id on
// the request context.
func (s *httpServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := s.auth.owner(r)
		if err != nil {
			s.writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(services.WithOwnerID(r.Context(), owner)))
	})
}

func ownerFrom(r *http.Request) string {
	owner, _ := services.OwnerIDFromContext(r.Context())
	return owner
}
