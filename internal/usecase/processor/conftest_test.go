package processor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/entity"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/registry"
	"github.com/kailas-cloud/vfields/internal/repository/fieldcache"
	"github.com/kailas-cloud/vfields/internal/usecase/guard"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
)

type harness struct {
	svc   *Service
	reg   *registry.Registry
	cache *fieldcache.MemoryStore
	mon   *monitor.Monitor
	logs  *observer.ObservedLogs
	calls map[string]*atomic.Int64
}

func newHarness(t *testing.T, cfg domain.EngineConfig) *harness {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	h := &harness{
		reg:   registry.New(logger),
		cache: fieldcache.NewMemoryStore(0),
		mon:   monitor.New(monitor.Config{}, logger),
		logs:  logs,
		calls: make(map[string]*atomic.Int64),
	}
	g := guard.New(cfg, h.mon, logger)
	h.svc = New(h.reg, g, logger).WithCache(h.cache).WithMonitor(h.mon)
	return h
}

// define registers a field whose compute calls are counted.
func (h *harness) define(t *testing.T, name string, p field.Params) {
	t.Helper()
	counter := &atomic.Int64{}
	h.calls[name] = counter
	inner := p.Compute
	p.Compute = field.ComputeFunc(func(ctx context.Context, e entity.Entity) (any, error) {
		counter.Add(1)
		return inner.Compute(ctx, e)
	})
	def, err := field.New(name, p)
	if err != nil {
		t.Fatalf("define %s: %v", name, err)
	}
	h.reg.Add(def)
}

func (h *harness) callCount(name string) int64 {
	return h.calls[name].Load()
}

func attr(e entity.Entity, name string) string {
	v, _ := e.Attribute(name)
	s, _ := v.(string)
	return s
}

var (
	fullName = field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
		return strings.TrimSpace(attr(e, "first") + " " + attr(e, "last")), nil
	})

	emailDomain = field.ComputeFunc(func(_ context.Context, e entity.Entity) (any, error) {
		_, domainPart, ok := strings.Cut(attr(e, "email"), "@")
		if !ok {
			return nil, errors.New("no @ in email")
		}
		return domainPart, nil
	})

	nameLength = field.ComputeFunc(func(ctx context.Context, e entity.Entity) (any, error) {
		v, err := field.Resolve(ctx, "full_name", e)
		if err != nil {
			return nil, err
		}
		s, _ := v.(string)
		return len(s), nil
	})
)

// defineNames registers full_name, email_domain and name_length.
func (h *harness) defineNames(t *testing.T) {
	t.Helper()
	h.define(t, "full_name", field.Params{
		Type:         field.String,
		Compute:      fullName,
		Dependencies: []string{"first", "last"},
		Cacheable:    true,
		Sortable:     true,
	})
	h.define(t, "email_domain", field.Params{
		Type:         field.String,
		Compute:      emailDomain,
		Dependencies: []string{"email"},
	})
	h.define(t, "name_length", field.Params{
		Type:         field.Integer,
		Compute:      nameLength,
		Dependencies: []string{"full_name"},
		Sortable:     true,
	})
}

func person(key, first, last, email string) *entity.Record {
	return entity.NewRecord("users", key, map[string]any{"first": first, "last": last, "email": email}, nil)
}

func people() []entity.Entity {
	return []entity.Entity{
		person("1", "John", "Doe", "john@example.com"),
		person("2", "Jane", "Smith", "jane@gmail.com"),
		person("3", "Bob", "", "bob@company.org"),
	}
}

func keys(entities []entity.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Key()
	}
	return out
}
