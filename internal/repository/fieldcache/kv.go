package fieldcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/db"
	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/domain/value"
)

// Compile-time check: KVStore implements Store.
var _ Store = (*KVStore)(nil)

const delChunk = 500

// kv is the consumer interface for the shared cache backend (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetMulti(ctx context.Context, items []db.KVItem) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore caches field values as JSON in Redis or Valkey.
type KVStore struct {
	kv         kv
	prefix     string
	defaultTTL time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// NewKVStore creates a KV-backed cache.
// cacheTotal is a counter vec with label "result"; backend failures count as "error".
func NewKVStore(
	s kv,
	prefix string,
	defaultTTL time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *KVStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KVStore{
		kv:         s,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// InvalidationMode reports glob-scan invalidation.
func (s *KVStore) InvalidationMode() InvalidationMode { return ModePattern }

// Retrieve returns a cached value coerced back to the field type.
func (s *KVStore) Retrieve(ctx context.Context, def field.Definition, e entity.Entity) (any, bool) {
	key := s.key(def.Name(), e)
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			s.fail("retrieve", key, err)
		}
		return nil, false
	}
	return s.decode(def, key, data)
}

// RetrieveBatch fetches all entities in one MGET.
func (s *KVStore) RetrieveBatch(ctx context.Context, def field.Definition, entities []entity.Entity) []Hit {
	out := make([]Hit, len(entities))
	if len(entities) == 0 {
		return out
	}

	keys := lo.Map(entities, func(e entity.Entity, _ int) string { return s.key(def.Name(), e) })
	values, err := s.kv.MGet(ctx, keys)
	if err != nil {
		s.fail("retrieve_batch", def.Name(), err)
		return out
	}
	for i, data := range values {
		if data == nil || i >= len(out) {
			continue
		}
		if v, ok := s.decode(def, keys[i], data); ok {
			out[i] = Hit{Value: v, Found: true}
		}
	}
	return out
}

// Store caches a value as JSON.
func (s *KVStore) Store(ctx context.Context, def field.Definition, e entity.Entity, v any, ttl time.Duration) {
	key := s.key(def.Name(), e)
	data, err := json.Marshal(v)
	if err != nil {
		s.fail("encode", key, err)
		return
	}
	if err := s.kv.SetWithTTL(ctx, key, data, effectiveTTL(ttl, s.defaultTTL)); err != nil {
		s.fail("store", key, err)
	}
}

// StoreBatch pipelines all values in one round-trip. Unencodable values are skipped.
func (s *KVStore) StoreBatch(ctx context.Context, def field.Definition, entries []Entry, ttl time.Duration) {
	ttl = effectiveTTL(ttl, s.defaultTTL)
	items := make([]db.KVItem, 0, len(entries))
	for _, en := range entries {
		key := s.key(def.Name(), en.Entity)
		data, err := json.Marshal(en.Value)
		if err != nil {
			s.fail("encode", key, err)
			continue
		}
		items = append(items, db.KVItem{Key: key, Value: data, TTL: ttl})
	}
	if len(items) == 0 {
		return
	}
	if err := s.kv.SetMulti(ctx, items); err != nil {
		s.fail("store_batch", def.Name(), err)
	}
}

// Invalidate drops one field of one entity.
func (s *KVStore) Invalidate(ctx context.Context, fieldName string, e entity.Entity) {
	key := s.key(fieldName, e)
	if err := s.kv.Del(ctx, key); err != nil {
		s.fail("invalidate", key, err)
	}
}

// InvalidateEntity drops the named fields of e directly, or scans for all of them.
func (s *KVStore) InvalidateEntity(ctx context.Context, e entity.Entity, fields ...string) {
	if len(fields) > 0 {
		keys := lo.Map(fields, func(name string, _ int) string { return s.key(name, e) })
		s.del(ctx, "invalidate_entity", keys)
		return
	}
	s.deletePattern(ctx, s.globPrefix()+globPart(e.Type())+":"+globPart(e.Key())+":*")
}

// InvalidateType scans for the type's keys, optionally narrowed to the named fields.
func (s *KVStore) InvalidateType(ctx context.Context, entityType string, fields ...string) {
	base := s.globPrefix() + globPart(entityType) + ":*"
	if len(fields) == 0 {
		s.deletePattern(ctx, base)
		return
	}
	for _, name := range lo.Uniq(fields) {
		s.deletePattern(ctx, base+":"+globPart(name))
	}
}

// FlushAll drops every key under the prefix.
func (s *KVStore) FlushAll(ctx context.Context) {
	s.deletePattern(ctx, s.globPrefix()+"*")
}

func (s *KVStore) deletePattern(ctx context.Context, pattern string) {
	keys, err := s.kv.Scan(ctx, pattern)
	if err != nil {
		s.fail("scan", pattern, err)
		return
	}
	s.del(ctx, "invalidate_pattern", keys)
}

func (s *KVStore) del(ctx context.Context, op string, keys []string) {
	for _, chunk := range lo.Chunk(keys, delChunk) {
		if err := s.kv.Del(ctx, chunk...); err != nil {
			s.fail(op, chunk[0], err)
			return
		}
	}
}

func (s *KVStore) decode(def field.Definition, key string, data []byte) (any, bool) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		s.fail("decode", key, err)
		return nil, false
	}
	return value.Coerce(def.FieldType(), v), true
}

func (s *KVStore) key(fieldName string, e entity.Entity) string {
	return Key(s.prefix, e.Type(), e.Key(), fieldName)
}

func (s *KVStore) globPrefix() string {
	return escapeGlob(s.prefix) + keyNamespace
}

func (s *KVStore) fail(op, key string, err error) {
	if s.cacheTotal != nil {
		s.cacheTotal.WithLabelValues("error").Inc()
	}
	s.logger.Warn("Field cache operation failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}
