// Package snapshot keeps the ordered result ids of the last listing in the session,
// so that single-record pages can offer stable previous/next navigation.
package snapshot

import (
	"context"
	"crypto/sha1" //nolint:gosec // fingerprint, not a security boundary
	"encoding/hex"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/libcat/internal/domain/session"
)

// Fetcher returns the ordered ids of a query, bounded to the configured maximum.
type Fetcher func(ctx context.Context) ([]int64, error)

// Fingerprint identifies an effective query. Page and page size never contribute.
type Fingerprint struct {
	Hash   string
	Query  string
	Params string
}

// NewFingerprint hashes the raw query text together with canonical query parts.
func NewFingerprint(query string, parts ...string) Fingerprint {
	params := strings.Join(parts, "\n")
	sum := sha1.Sum([]byte(query + "\x00" + params)) //nolint:gosec // see import
	return Fingerprint{Hash: hex.EncodeToString(sum[:]), Query: query, Params: params}
}

// Snapshot is the id list a listing navigates through.
type Snapshot struct {
	IDs   []int64
	Fresh bool
}

// Cache compares fingerprints against session state and refreshes stale snapshots.
type Cache struct {
	total *prometheus.CounterVec
	now   func() time.Time
}

// New creates a snapshot cache.
// total is a counter vec with label "result" ("fresh"/"stale"), passed explicitly; it may be nil.
func New(total *prometheus.CounterVec) *Cache {
	return &Cache{total: total, now: time.Now}
}

// GetOrRefresh returns the stored ids when fp matches the session, otherwise it clears the
// session, fetches the ids and stores them under fp.
func (c *Cache) GetOrRefresh(ctx context.Context, st *session.State, fp Fingerprint, fetch Fetcher) (Snapshot, error) {
	if st.Fingerprint != "" && st.Fingerprint == fp.Hash {
		c.inc("fresh")
		return Snapshot{IDs: st.ManifestationIDs, Fresh: true}, nil
	}

	st.Clear()
	ids, err := fetch(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	st.Store(fp.Hash, fp.Query, fp.Params, ids, c.now().UTC())
	c.inc("stale")
	return Snapshot{IDs: ids}, nil
}

// Neighbors returns the ids around id in the session snapshot.
func Neighbors(st *session.State, id int64) (prev, next int64, ok bool) {
	if st == nil {
		return 0, 0, false
	}
	return st.Neighbors(id)
}

func (c *Cache) inc(result string) {
	if c.total != nil {
		c.total.WithLabelValues(result).Inc()
	}
}
