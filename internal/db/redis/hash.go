package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/libcat/internal/db"
)

// ReplaceHashes rewrites each hash from scratch: DEL then HSET, pipelined in one round-trip.
// Fields absent from the new version (a dropped subject, a cleared ISSN) disappear from the index.
func (s *Store) ReplaceHashes(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, 0, 2*len(items))
	for _, item := range items {
		cmds = append(cmds, s.b().Del().Key(item.Key).Build())
		if len(item.Fields) == 0 {
			continue
		}
		hset := s.b().Hset().Key(item.Key).FieldValue()
		for k, v := range item.Fields {
			hset = hset.FieldValue(k, v)
		}
		cmds = append(cmds, hset.Build())
	}

	keys := commandKeys(items)
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			op := db.OpHSet
			if keys[i].del {
				op = db.OpDel
			}
			return &db.Error{Op: op, Key: keys[i].key, Err: err}
		}
	}
	return nil
}

type commandKey struct {
	key string
	del bool
}

// commandKeys mirrors the command layout built by ReplaceHashes.
func commandKeys(items []db.HashSetItem) []commandKey {
	out := make([]commandKey, 0, 2*len(items))
	for _, item := range items {
		out = append(out, commandKey{key: item.Key, del: true})
		if len(item.Fields) > 0 {
			out = append(out, commandKey{key: item.Key})
		}
	}
	return out
}
