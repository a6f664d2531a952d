package fieldcache

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/vfields/internal/db"
	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
)

// mockKV implements the consumer interface for tests. Unset fns fall back to an in-memory map.
type mockKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration

	getFn  func(ctx context.Context, key string) ([]byte, error)
	mgetFn func(ctx context.Context, keys []string) ([][]byte, error)
	setFn  func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	delFn  func(ctx context.Context, keys ...string) error
	scanFn func(ctx context.Context, pattern string) ([]string, error)

	delCalls [][]string
	patterns []string
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if m.mgetFn != nil {
		return m.mgetFn(ctx, keys)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *mockKV) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mockKV) SetMulti(ctx context.Context, items []db.KVItem) error {
	for _, it := range items {
		if err := m.SetWithTTL(ctx, it.Key, it.Value, it.TTL); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockKV) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	m.delCalls = append(m.delCalls, keys)
	m.mu.Unlock()
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Scan records the pattern and returns keys the test registered via scanFn.
func (m *mockKV) Scan(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	m.patterns = append(m.patterns, pattern)
	m.mu.Unlock()
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func testDef(name string, t field.Type) field.Definition {
	return field.Reconstruct(name, field.Params{
		Type:      t,
		Compute:   field.ComputeFunc(func(context.Context, entity.Entity) (any, error) { return nil, nil }),
		Cacheable: true,
	})
}

func user(key string) *entity.Record {
	return entity.NewRecord("users", key, nil, nil)
}
