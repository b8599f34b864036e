package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/kailas-cloud/libcat/internal/db"
	"github.com/kailas-cloud/libcat/internal/db/redis"
	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/session"
)

func TestLoad_Miss(t *testing.T) {
	repo, ms := newTestRepo(t)
	var gotKey string
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		gotKey = key
		return nil, db.ErrKeyNotFound
	}

	st, err := repo.Load(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if gotKey != "libcat:session:abc" {
		t.Errorf("key = %q", gotKey)
	}
	if st.ID != "abc" || st.Fingerprint != "" || st.Dirty() || st.Persisted() {
		t.Errorf("state = %+v", st)
	}
}

func TestLoad_Hit(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.getFn = func(context.Context, string) ([]byte, error) {
		return []byte(`{"id":"other","fingerprint":"f1","query":"moby","manifestation_ids":[3,1,2]}`), nil
	}

	st, err := repo.Load(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.ID != "abc" {
		t.Errorf("ID = %q, want the requested id", st.ID)
	}
	if st.Dirty() || !st.Persisted() {
		t.Errorf("loaded state must be clean and persisted: %+v", st)
	}
	if st.Fingerprint != "f1" || len(st.ManifestationIDs) != 3 || st.ManifestationIDs[0] != 3 {
		t.Errorf("state = %+v", st)
	}
}

func TestLoad_CorruptStartsFresh(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.getFn = func(context.Context, string) ([]byte, error) { return []byte("{not json"), nil }

	st, err := repo.Load(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Fingerprint != "" || len(st.ManifestationIDs) != 0 || st.Persisted() {
		t.Errorf("state = %+v, want empty", st)
	}
}

func TestLoad_StoreDown(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.getFn = func(context.Context, string) ([]byte, error) {
		return nil, &db.Error{Op: db.OpGet, Err: errors.New("connection refused")}
	}

	if _, err := repo.Load(context.Background(), "abc"); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestSave_Dirty(t *testing.T) {
	repo, ms := newTestRepo(t)
	var (
		gotKey string
		gotTTL time.Duration
		saved  session.State
	)
	ms.setFn = func(_ context.Context, key string, value []byte, ttl time.Duration) error {
		gotKey, gotTTL = key, ttl
		return json.Unmarshal(value, &saved)
	}
	ms.expireFn = func(context.Context, string, time.Duration) error {
		t.Error("Expire must not be called for changed state")
		return nil
	}

	st := session.New("abc")
	st.Store("fp", "moby", "page=1", []int64{5, 6}, time.Unix(1700000000, 0).UTC())
	if err := repo.Save(context.Background(), st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if gotKey != "libcat:session:abc" || gotTTL != time.Hour {
		t.Errorf("key/ttl = %q/%v", gotKey, gotTTL)
	}
	if saved.Fingerprint != "fp" || len(saved.ManifestationIDs) != 2 {
		t.Errorf("saved = %+v", saved)
	}
	if st.Dirty() {
		t.Error("state must be clean after save")
	}
}

func TestSave_CleanRefreshesTTL(t *testing.T) {
	repo, ms := newTestRepo(t)
	var expired bool
	ms.setFn = func(context.Context, string, []byte, time.Duration) error {
		t.Error("SET must not be called for unchanged state")
		return nil
	}
	ms.expireFn = func(_ context.Context, key string, ttl time.Duration) error {
		expired = key == "libcat:session:abc" && ttl == time.Hour
		return nil
	}

	if err := repo.Save(context.Background(), session.New("abc")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !expired {
		t.Error("expected TTL refresh")
	}
}

func TestSave_StoreDown(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.setFn = func(context.Context, string, []byte, time.Duration) error {
		return &db.Error{Op: db.OpSet, Err: errors.New("timeout")}
	}
	st := session.New("abc")
	st.Clear()
	if err := repo.Save(context.Background(), st); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !st.Dirty() {
		t.Error("failed save must keep the state dirty")
	}
}

func TestLoad_CountsHitsAndMisses(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_session_load_total"}, []string{"result"})
	ms := &mockKVStore{}
	repo := New(ms, "", time.Hour, counter, zap.NewNop())

	_, _ = repo.Load(context.Background(), "a")
	ms.getFn = func(context.Context, string) ([]byte, error) { return []byte(`{}`), nil }
	_, _ = repo.Load(context.Background(), "b")

	if got := testutil.ToFloat64(counter.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss = %v, want 1", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("hit")); got != 1 {
		t.Errorf("hit = %v, want 1", got)
	}
}

func TestRoundTripThroughRedisStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "libcat:session:s1")).
		Return(mock.Result(mock.RedisBlobString(`{"id":"s1","fingerprint":"abc","manifestation_ids":[9]}`)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXPIRE", "libcat:session:s1", "1800")).
		Return(mock.Result(mock.RedisInt64(1)))

	repo := New(redis.NewStoreForTest(c), "", 30*time.Minute, nil, zap.NewNop())
	st, err := repo.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if prev, next, ok := st.Neighbors(9); !ok || prev != 0 || next != 0 {
		t.Errorf("Neighbors(9) = %d, %d, %v", prev, next, ok)
	}
	if err := repo.Save(context.Background(), st); err != nil {
		t.Fatalf("Save: %v", err)
	}
}
