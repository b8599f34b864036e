package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/libcat/internal/domain/session"
	"github.com/kailas-cloud/libcat/internal/logger"
)

// sessionStore loads and saves visitor state (ISP).
type sessionStore interface {
	Load(ctx context.Context, id string) (*session.State, error)
	Save(ctx context.Context, st *session.State) error
}

type sessionKey struct{}

// ContextWithSession stores the visitor state in the context.
func ContextWithSession(ctx context.Context, st *session.State) context.Context {
	return context.WithValue(ctx, sessionKey{}, st)
}

// SessionFromContext returns the visitor state, or nil when no session is available.
func SessionFromContext(ctx context.Context) *session.State {
	st, _ := ctx.Value(sessionKey{}).(*session.State)
	return st
}

// SessionMiddleware identifies visitors by a random cookie, loads their state before the
// handler and saves it afterwards. A failing store degrades to a request without session.
func SessionMiddleware(store sessionStore, cookieName string, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			log := logger.FromContext(ctx)

			id, fromCookie := "", false
			if c, err := r.Cookie(cookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id, fromCookie = parsed.String(), true
				}
			}
			if id == "" {
				id = uuid.NewString()
			}

			st, err := store.Load(ctx, id)
			if err != nil {
				log.Warn("Session unavailable", zap.String("session_id", id), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			// Ids the store does not know are never adopted: the server picks every session id.
			if !st.Persisted() {
				if fromCookie {
					st = session.New(uuid.NewString())
				}
				st.Touch()
				setSessionCookie(w, r, cookieName, st.ID, ttl)
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(ctx, st)))

			if err := store.Save(context.WithoutCancel(ctx), st); err != nil {
				log.Warn("Failed to save session", zap.String("session_id", id), zap.Error(err))
			}
		})
	}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, name, id string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
