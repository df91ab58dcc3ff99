package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig guards the API with HS256 bearer tokens. An empty secret leaves
// the API open.
type AuthConfig struct {
	JWTSecret string
}

func (c AuthConfig) enabled() bool { return strings.TrimSpace(c.JWTSecret) != "" }

type Principal struct {
	Subject string
	Roles   []string
	Source  string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

func authenticateJWT(token string, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{Subject: claims.Subject, Roles: claims.Roles, Source: "jwt"}, nil
}

// IssueToken signs an HS256 token for subject, for CLI and test use.
func IssueToken(secret, subject string, roles ...string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Roles:            roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
	}
	wsPath := path.Join(basePath, "ws")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !cfg.enabled() || !strings.HasPrefix(req.URL.Path, basePath) || open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(strings.TrimSpace(req.Header.Get("Authorization")))
			// browsers cannot set headers on websocket upgrades
			if !ok && req.URL.Path == wsPath {
				token = strings.TrimSpace(req.URL.Query().Get("token"))
				ok = token != ""
			}
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			principal, err := authenticateJWT(token, cfg.JWTSecret)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
