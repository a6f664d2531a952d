package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"github.com/samber/lo"

	"github.com/kailas-cloud/vfields/internal/db"
)

const scanCount = 100

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Get().Key(key).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// MGet fetches several keys in one DoMulti round-trip. Missing keys yield nil entries.
// Each key is its own GET so a cluster client can route keys that hash to different slots.
func (s *Store) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Get().Key(key).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	if len(results) != len(keys) {
		return nil, &db.Error{Op: db.OpMGet, Err: fmt.Errorf("expected %d values, got %d", len(keys), len(results))}
	}

	out := make([][]byte, len(keys))
	for i, res := range results {
		data, err := res.AsBytes()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			return nil, &db.Error{Op: db.OpMGet, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
		out[i] = data
	}
	return out, nil
}

// SetWithTTL stores a value with an expiration. Zero ttl stores without expiry.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.do(ctx, s.setCmd(key, value, ttl)).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// SetMulti stores multiple values in a single DoMulti round-trip.
func (s *Store) SetMulti(ctx context.Context, items []db.KVItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(items))
	for i, item := range items {
		cmds[i] = s.setCmd(item.Key, item.Value, item.TTL)
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpSet, Err: fmt.Errorf("key %s: %w", items[i].Key, err)}
		}
	}
	return nil
}

// Del deletes keys with one DEL per key sent through DoMulti. No keys is a no-op.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Del().Key(key).Build()
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpDel, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
	}
	return nil
}

// Scan iterates keys matching a pattern on every node. A standalone client
// reports itself as its only node.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	for addr, node := range s.client.Nodes() {
		found, err := scanNode(ctx, node, pattern)
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: fmt.Errorf("node %s: %w", addr, err)}
		}
		keys = append(keys, found...)
	}
	return lo.Uniq(keys), nil
}

func scanNode(ctx context.Context, node rueidis.Client, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		cmd := node.B().Scan().Cursor(cursor).Match(pattern).Count(scanCount).Build()
		res, err := node.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, err
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

func (s *Store) setCmd(key string, value []byte, ttl time.Duration) rueidis.Completed {
	if ttl > 0 {
		return s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	}
	return s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
}
