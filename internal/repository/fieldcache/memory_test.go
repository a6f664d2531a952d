package fieldcache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
)

func TestMemoryStore_StoreRetrieve(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	def := testDef("full_name", field.String)

	if _, ok := s.Retrieve(ctx, def, user("1")); ok {
		t.Fatal("expected miss on empty cache")
	}
	s.Store(ctx, def, user("1"), "John Doe", 0)

	v, ok := s.Retrieve(ctx, def, user("1"))
	if !ok || v != "John Doe" {
		t.Fatalf("Retrieve = %v, %v", v, ok)
	}
	if _, ok := s.Retrieve(ctx, def, entity.NewRecord("orders", "1", nil, nil)); ok {
		t.Error("same key under another type must miss")
	}
}

func TestMemoryStore_NilValueIsAHit(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	def := testDef("nickname", field.String)

	s.Store(ctx, def, user("1"), nil, 0)
	v, ok := s.Retrieve(ctx, def, user("1"))
	if !ok || v != nil {
		t.Fatalf("Retrieve = %v, %v; want nil, true", v, ok)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	def := testDef("f", field.String)

	s.Store(ctx, def, user("own"), "a", time.Minute)
	s.Store(ctx, def, user("default"), "b", 0)

	now = now.Add(2 * time.Minute)
	if _, ok := s.Retrieve(ctx, def, user("own")); ok {
		t.Error("field ttl should have expired")
	}
	if _, ok := s.Retrieve(ctx, def, user("default")); !ok {
		t.Error("default ttl should still be live")
	}
	if s.Len() != 1 {
		t.Errorf("expired entry should be reaped, len = %d", s.Len())
	}

	now = now.Add(time.Hour)
	if _, ok := s.Retrieve(ctx, def, user("default")); ok {
		t.Error("default ttl should have expired")
	}
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	now := time.Now()
	s := NewMemoryStore(0)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	def := testDef("f", field.String)

	s.Store(ctx, def, user("1"), "v", 0)
	now = now.Add(24 * 365 * time.Hour)
	if _, ok := s.Retrieve(ctx, def, user("1")); !ok {
		t.Error("entry without ttl must not expire")
	}
}

func TestMemoryStore_Batch(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	def := testDef("f", field.Integer)

	s.StoreBatch(ctx, def, []Entry{
		{Entity: user("1"), Value: int64(1)},
		{Entity: user("3"), Value: int64(3)},
	}, 0)

	hits := s.RetrieveBatch(ctx, def, []entity.Entity{user("1"), user("2"), user("3")})
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if !hits[0].Found || hits[0].Value != int64(1) {
		t.Errorf("hits[0] = %+v", hits[0])
	}
	if hits[1].Found {
		t.Errorf("hits[1] should be a miss")
	}
	if !hits[2].Found || hits[2].Value != int64(3) {
		t.Errorf("hits[2] = %+v", hits[2])
	}
}

func TestMemoryStore_InvalidateEntity(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	a, b := testDef("a", field.String), testDef("b", field.String)

	for _, key := range []string{"1", "2"} {
		s.Store(ctx, a, user(key), "x", 0)
		s.Store(ctx, b, user(key), "y", 0)
	}

	s.InvalidateEntity(ctx, user("1"), "a")
	if _, ok := s.Retrieve(ctx, a, user("1")); ok {
		t.Error("a/1 should be invalidated")
	}
	if _, ok := s.Retrieve(ctx, b, user("1")); !ok {
		t.Error("b/1 should survive a field-scoped invalidation")
	}

	s.InvalidateEntity(ctx, user("1"))
	if _, ok := s.Retrieve(ctx, b, user("1")); ok {
		t.Error("b/1 should be invalidated with the whole entity")
	}
	if _, ok := s.Retrieve(ctx, a, user("2")); !ok {
		t.Error("other entities must be untouched")
	}
}

func TestMemoryStore_InvalidateTypeAndFlush(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	a, b := testDef("a", field.String), testDef("b", field.String)
	order := entity.NewRecord("orders", "1", nil, nil)

	s.Store(ctx, a, user("1"), "x", 0)
	s.Store(ctx, b, user("1"), "y", 0)
	s.Store(ctx, a, order, "z", 0)

	s.InvalidateType(ctx, "users", "a")
	if _, ok := s.Retrieve(ctx, a, user("1")); ok {
		t.Error("users.a should be invalidated")
	}
	if _, ok := s.Retrieve(ctx, b, user("1")); !ok {
		t.Error("users.b should survive")
	}

	s.InvalidateType(ctx, "users")
	if _, ok := s.Retrieve(ctx, b, user("1")); ok {
		t.Error("users.b should be invalidated")
	}
	if _, ok := s.Retrieve(ctx, a, order); !ok {
		t.Error("orders must be untouched")
	}

	s.Invalidate(ctx, "a", order)
	if s.Len() != 0 {
		t.Errorf("expected empty cache, len = %d", s.Len())
	}

	s.Store(ctx, a, order, "z", 0)
	s.FlushAll(ctx)
	if _, ok := s.Retrieve(ctx, a, order); ok {
		t.Error("flush should clear everything")
	}
	if s.InvalidationMode() != ModeTags {
		t.Errorf("mode = %s", s.InvalidationMode())
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	def := testDef("f", field.Integer)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				e := user(fmt.Sprint(i % 20))
				switch i % 3 {
				case 0:
					s.Store(ctx, def, e, w, 0)
				case 1:
					s.Retrieve(ctx, def, e)
				default:
					s.InvalidateEntity(ctx, e)
				}
			}
		}()
	}
	wg.Wait()
}
