// Package fieldcache caches computed virtual field values per entity.
//
// Caching is an optimisation: adapters never return errors. A failed read is a
// miss and a failed write or invalidation is logged and dropped.
package fieldcache

import (
	"context"
	"strings"
	"time"

	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
)

// InvalidationMode names how an adapter implements scoped invalidation.
type InvalidationMode string

// Invalidation modes.
const (
	// ModeTags invalidates through exact per-entity and per-type indexes.
	ModeTags InvalidationMode = "tags"
	// ModePattern invalidates by scanning keys that match a glob.
	ModePattern InvalidationMode = "pattern"
)

const keyNamespace = "vf:"

// Store is the cache contract consumed by the processor.
// All methods are safe for concurrent use.
//
//nolint:interfacebloat // mirrors the cache contract one-to-one
type Store interface {
	Retrieve(ctx context.Context, def field.Definition, e entity.Entity) (any, bool)
	RetrieveBatch(ctx context.Context, def field.Definition, entities []entity.Entity) []Hit
	Store(ctx context.Context, def field.Definition, e entity.Entity, value any, ttl time.Duration)
	StoreBatch(ctx context.Context, def field.Definition, entries []Entry, ttl time.Duration)
	Invalidate(ctx context.Context, fieldName string, e entity.Entity)
	// InvalidateEntity drops the named fields of e, or all of its fields when none are named.
	InvalidateEntity(ctx context.Context, e entity.Entity, fields ...string)
	// InvalidateType drops the named fields for every entity of a type, or all fields when none are named.
	InvalidateType(ctx context.Context, entityType string, fields ...string)
	FlushAll(ctx context.Context)
	InvalidationMode() InvalidationMode
}

// Hit is one RetrieveBatch result, aligned with the requested entities.
type Hit struct {
	Value any
	Found bool
}

// Entry is one StoreBatch item.
type Entry struct {
	Entity entity.Entity
	Value  any
}

// Key builds the cache key "<prefix>vf:<entityType>:<entityKey>:<field>".
// Each part has "%" and ":" percent-encoded, so parts never contain the separator.
func Key(prefix, entityType, entityKey, fieldName string) string {
	return prefix + keyNamespace + encodePart(entityType) + ":" + encodePart(entityKey) + ":" + encodePart(fieldName)
}

var partEncoder = strings.NewReplacer("%", "%25", ":", "%3A")

func encodePart(s string) string {
	return partEncoder.Replace(s)
}

// effectiveTTL falls back to the store default when the field has none.
// Zero means no expiry.
func effectiveTTL(ttl, fallback time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return fallback
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob quotes SCAN MATCH metacharacters so key parts match literally.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

// globPart is a key part as it appears in a SCAN MATCH pattern.
func globPart(s string) string {
	return escapeGlob(encodePart(s))
}
