package snapshot

import (
	"context"
	"sync"
)

// Request memoizes the bounded id list of the query served by the current request.
// Every consumer within one request (snapshot, tag cloud) shares a single fetch.
type Request struct {
	fetch Fetcher

	mu   sync.Mutex
	ids  []int64
	done bool
}

// NewRequest creates a memo around fetch.
func NewRequest(fetch Fetcher) *Request {
	return &Request{fetch: fetch}
}

// Seed records ids that are already known, for example when one page held the whole result.
func (r *Request) Seed(ids []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = ids
	r.done = true
}

// IDs returns the memoized ids, fetching them on first use. A failed fetch is not memoized.
func (r *Request) IDs(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return r.ids, nil
	}
	ids, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}
	r.ids = ids
	r.done = true
	return ids, nil
}

// Fetched reports whether ids are already available without a fetch.
func (r *Request) Fetched() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
