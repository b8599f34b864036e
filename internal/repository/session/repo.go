// Package session persists per-visitor search state in the key-value store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/libcat/internal/db"
	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/session"
)

// DefaultKeyPrefix namespaces session keys.
var DefaultKeyPrefix = domain.KeyPrefix + "session:"

// store is the consumer interface for session persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Repo loads and saves session state as JSON with a sliding TTL.
type Repo struct {
	store     store
	prefix    string
	ttl       time.Duration
	loadTotal *prometheus.CounterVec
	logger    *zap.Logger
}

// New creates a session repository.
// loadTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly; it may be nil.
func New(s store, prefix string, ttl time.Duration, loadTotal *prometheus.CounterVec, logger *zap.Logger) *Repo {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: prefix, ttl: ttl, loadTotal: loadTotal, logger: logger}
}

func (r *Repo) key(id string) string { return r.prefix + id }

// Load returns the stored state, or a fresh one when the session is unknown or unreadable.
// Only store failures are returned as errors.
func (r *Repo) Load(ctx context.Context, id string) (*session.State, error) {
	data, err := r.store.Get(ctx, r.key(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			r.inc("miss")
			return session.New(id), nil
		}
		return nil, domain.Unavailable("session store", err)
	}

	st := session.New(id)
	if err := json.Unmarshal(data, st); err != nil {
		r.logger.Warn("Discarding unreadable session", zap.String("session_id", id), zap.Error(err))
		r.inc("miss")
		return session.New(id), nil
	}
	st.ID = id
	st.MarkClean()
	r.inc("hit")
	return st, nil
}

// Save writes changed state and refreshes the TTL of unchanged state.
// Concurrent requests of one session overwrite each other; the last save wins.
func (r *Repo) Save(ctx context.Context, st *session.State) error {
	if st == nil || st.ID == "" {
		return nil
	}
	if !st.Dirty() {
		err := r.store.Expire(ctx, r.key(st.ID), r.ttl)
		if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
			return domain.Unavailable("session store", err)
		}
		return nil
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.store.SetWithTTL(ctx, r.key(st.ID), data, r.ttl); err != nil {
		return domain.Unavailable("session store", err)
	}
	st.MarkClean()
	return nil
}

// Delete removes the session.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, r.key(id)); err != nil {
		return domain.Unavailable("session store", err)
	}
	return nil
}

func (r *Repo) inc(result string) {
	if r.loadTotal != nil {
		r.loadTotal.WithLabelValues(result).Inc()
	}
}
