package fieldcache

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
)

// Compile-time check: MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

type memKey struct {
	entityType string
	entityKey  string
	field      string
}

type memEntry struct {
	value     any
	expiresAt time.Time // zero: no expiry
}

// MemoryStore is a process-local cache with exact entity and type indexes.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[memKey]memEntry
	byEntity   map[[2]string]map[memKey]struct{}
	byType     map[string]map[memKey]struct{}
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemoryStore creates an in-memory cache. defaultTTL applies to fields without their own TTL.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[memKey]memEntry),
		byEntity:   make(map[[2]string]map[memKey]struct{}),
		byType:     make(map[string]map[memKey]struct{}),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// InvalidationMode reports tag-based invalidation.
func (s *MemoryStore) InvalidationMode() InvalidationMode { return ModeTags }

// Len returns the number of live and not yet reaped entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Retrieve returns a cached value.
func (s *MemoryStore) Retrieve(_ context.Context, def field.Definition, e entity.Entity) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(keyOf(def.Name(), e))
}

// RetrieveBatch returns one Hit per entity.
func (s *MemoryStore) RetrieveBatch(_ context.Context, def field.Definition, entities []entity.Entity) []Hit {
	out := make([]Hit, len(entities))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range entities {
		v, ok := s.getLocked(keyOf(def.Name(), e))
		out[i] = Hit{Value: v, Found: ok}
	}
	return out
}

// Store caches a value. ttl falls back to the store default; zero means no expiry.
func (s *MemoryStore) Store(_ context.Context, def field.Definition, e entity.Entity, value any, ttl time.Duration) {
	expiresAt := s.expiry(ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(keyOf(def.Name(), e), value, expiresAt)
}

// StoreBatch caches several values under a single lock.
func (s *MemoryStore) StoreBatch(_ context.Context, def field.Definition, entries []Entry, ttl time.Duration) {
	expiresAt := s.expiry(ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, en := range entries {
		s.putLocked(keyOf(def.Name(), en.Entity), en.Value, expiresAt)
	}
}

// Invalidate drops one field of one entity.
func (s *MemoryStore) Invalidate(_ context.Context, fieldName string, e entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(keyOf(fieldName, e))
}

// InvalidateEntity drops the named fields of e, or all of them.
func (s *MemoryStore) InvalidateEntity(_ context.Context, e entity.Entity, fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(fields) > 0 {
		for _, name := range fields {
			s.deleteLocked(keyOf(name, e))
		}
		return
	}
	for k := range s.byEntity[[2]string{e.Type(), e.Key()}] {
		s.deleteLocked(k)
	}
}

// InvalidateType drops the named fields, or all fields, for every entity of a type.
func (s *MemoryStore) InvalidateType(_ context.Context, entityType string, fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(fields))
	for _, name := range fields {
		wanted[name] = true
	}
	for k := range s.byType[entityType] {
		if len(wanted) == 0 || wanted[k.field] {
			s.deleteLocked(k)
		}
	}
}

// FlushAll empties the cache.
func (s *MemoryStore) FlushAll(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[memKey]memEntry)
	s.byEntity = make(map[[2]string]map[memKey]struct{})
	s.byType = make(map[string]map[memKey]struct{})
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	ttl = effectiveTTL(ttl, s.defaultTTL)
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) getLocked(k memKey) (any, bool) {
	en, ok := s.entries[k]
	if !ok {
		return nil, false
	}
	if !en.expiresAt.IsZero() && !s.now().Before(en.expiresAt) {
		s.deleteLocked(k)
		return nil, false
	}
	return en.value, true
}

func (s *MemoryStore) putLocked(k memKey, value any, expiresAt time.Time) {
	s.entries[k] = memEntry{value: value, expiresAt: expiresAt}

	ek := [2]string{k.entityType, k.entityKey}
	if s.byEntity[ek] == nil {
		s.byEntity[ek] = make(map[memKey]struct{})
	}
	s.byEntity[ek][k] = struct{}{}

	if s.byType[k.entityType] == nil {
		s.byType[k.entityType] = make(map[memKey]struct{})
	}
	s.byType[k.entityType][k] = struct{}{}
}

func (s *MemoryStore) deleteLocked(k memKey) {
	delete(s.entries, k)

	ek := [2]string{k.entityType, k.entityKey}
	if idx := s.byEntity[ek]; idx != nil {
		delete(idx, k)
		if len(idx) == 0 {
			delete(s.byEntity, ek)
		}
	}
	if idx := s.byType[k.entityType]; idx != nil {
		delete(idx, k)
		if len(idx) == 0 {
			delete(s.byType, k.entityType)
		}
	}
}

func keyOf(fieldName string, e entity.Entity) memKey {
	return memKey{entityType: e.Type(), entityKey: e.Key(), field: fieldName}
}
