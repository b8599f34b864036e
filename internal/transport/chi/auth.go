package chi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kailas-cloud/libcat/internal/domain"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

type userKey struct{}

// ContextWithUser stores the acting user in the context.
func ContextWithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the acting user, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey{}).(*domain.User)
	return u
}

// tokenClaims are the JWT claims carrying a principal.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator resolves bearer credentials to users.
type Authenticator struct {
	keys   map[string]*domain.User
	secret []byte
}

// NewAuthenticator creates an authenticator over static API keys and, when secret is set,
// HS256-signed JWTs with "sub" and "role" claims.
func NewAuthenticator(keys map[string]*domain.User, secret []byte) *Authenticator {
	valid := make(map[string]*domain.User, len(keys))
	for k, u := range keys {
		if k != "" && u != nil {
			valid[k] = u
		}
	}
	return &Authenticator{keys: valid, secret: secret}
}

var errInvalidToken = errors.New("invalid bearer token")

// Authenticate resolves a bearer token.
func (a *Authenticator) Authenticate(token string) (*domain.User, error) {
	if u, ok := a.keys[token]; ok {
		return u, nil
	}
	if len(a.secret) == 0 {
		return nil, errInvalidToken
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errInvalidToken
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		role = domain.DefaultRole()
	}
	return &domain.User{Login: sub, Role: role}, nil
}

// BearerAuthMiddleware resolves the Authorization header to the acting user.
// Requests without the header proceed anonymously; unknown credentials are rejected.
func BearerAuthMiddleware(auth *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Exempt paths
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(header, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			u, err := auth.Authenticate(strings.TrimSpace(header[len(bearerPrefix):]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), u)))
		})
	}
}
