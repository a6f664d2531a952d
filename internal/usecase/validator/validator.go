// Package validator turns raw field configuration into validated definitions.
package validator

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/field"
	"github.com/kailas-cloud/vfields/internal/registry"
)

const computeRequired = "compute is required"

// Validator validates raw configuration and registers the fields that pass.
type Validator struct {
	logger *zap.Logger
}

// New creates a Validator.
func New(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger}
}

// Build validates every entry of raw. known lists virtual fields that already
// exist outside raw (they take part in cycle detection). Returns the
// definitions that passed, in name order, and one error per problem found.
func (v *Validator) Build(raw RawConfig, known []field.Definition) ([]field.Definition, domain.ConfigErrors) {
	names := slices.Sorted(maps.Keys(raw))

	var errs domain.ConfigErrors
	params := make(map[string]field.Params, len(raw))
	rejected := make(map[string]bool)

	for _, name := range names {
		p, parseProblems := parse(raw[name])
		params[name] = p

		problems := parseProblems
		computeReported := slices.ContainsFunc(parseProblems, func(s string) bool {
			return strings.HasPrefix(s, "compute")
		})
		for _, pr := range p.Problems(name) {
			if pr == computeRequired && computeReported {
				continue
			}
			problems = append(problems, pr)
		}

		for _, pr := range problems {
			errs = append(errs, &domain.ConfigError{Field: name, Problem: pr})
		}
		if len(problems) > 0 {
			rejected[name] = true
		}
	}

	graph := make(map[string][]string, len(raw)+len(known))
	for _, d := range known {
		graph[d.Name()] = d.Dependencies()
	}
	for _, name := range names {
		graph[name] = params[name].Dependencies
	}

	for _, c := range detectCycles(graph) {
		if _, fromRaw := raw[c.field]; !fromRaw {
			continue
		}
		errs = append(errs, &domain.ConfigError{
			Field:   c.field,
			Problem: "circular dependency: " + strings.Join(c.path, " -> "),
		})
		rejected[c.field] = true
	}

	// A field reading a rejected virtual field of this batch cannot be activated either.
	for changed := true; changed; {
		changed = false
		for _, name := range names {
			if rejected[name] {
				continue
			}
			for _, dep := range params[name].Dependencies {
				if rejected[dep] {
					errs = append(errs, &domain.ConfigError{
						Field:   name,
						Problem: fmt.Sprintf("depends on invalid virtual field %q", dep),
					})
					rejected[name] = true
					changed = true
					break
				}
			}
		}
	}

	defs := make([]field.Definition, 0, len(names))
	for _, name := range names {
		if !rejected[name] {
			defs = append(defs, field.Reconstruct(name, params[name]))
		}
	}
	return defs, errs
}

// Register validates raw against the fields already in reg and adds every
// field that passed. The returned error lists all rejected fields' problems.
func (v *Validator) Register(reg *registry.Registry, raw RawConfig) error {
	existing := reg.All()
	known := existing[:0:0]
	for _, d := range existing {
		if _, redefined := raw[d.Name()]; !redefined {
			known = append(known, d)
		}
	}

	defs, errs := v.Build(raw, known)
	for _, d := range defs {
		reg.Add(d)
	}

	v.logger.Info("Virtual fields registered",
		zap.Int("accepted", len(defs)),
		zap.Int("rejected", len(errs.Fields())),
	)
	if len(errs) > 0 {
		v.logger.Warn("Virtual field configuration rejected",
			zap.Strings("fields", errs.Fields()),
			zap.Error(errs),
		)
		return errs
	}
	return nil
}
