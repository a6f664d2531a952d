package validator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/vfields/internal/domain/field"
)

// RawConfig is the untyped field configuration: name -> settings.
type RawConfig map[string]map[string]any

// Recognised settings keys. camelCase aliases are accepted for portability.
const (
	keyType         = "type"
	keyCompute      = "compute"
	keyDependencies = "dependencies"
	keyRelations    = "relations"
	keyOperators    = "operators"
	keyValues       = "values"
	keyCacheable    = "cacheable"
	keyCacheTTL     = "cache_ttl"
	keyDefault      = "default_value"
	keyNullable     = "nullable"
	keySortable     = "sortable"
	keySearchable   = "searchable"
	keyDescription  = "description"
)

var keyAliases = map[string]string{
	"cacheTtl":     keyCacheTTL,
	"defaultValue": keyDefault,
}

var knownKeys = map[string]bool{
	keyType: true, keyCompute: true, keyDependencies: true, keyRelations: true,
	keyOperators: true, keyValues: true, keyCacheable: true, keyCacheTTL: true,
	keyDefault: true, keyNullable: true, keySortable: true, keySearchable: true,
	keyDescription: true,
}

// parse converts one raw entry into Params, collecting every conversion problem.
func parse(settings map[string]any) (field.Params, []string) {
	var (
		p        field.Params
		problems []string
	)
	s := make(map[string]any, len(settings))
	for k, v := range settings {
		if alias, ok := keyAliases[k]; ok {
			k = alias
		}
		if !knownKeys[k] {
			problems = append(problems, fmt.Sprintf("unknown setting %q", k))
			continue
		}
		s[k] = v
	}

	switch t := s[keyType].(type) {
	case nil:
	case string:
		p.Type = field.Type(t)
	case field.Type:
		p.Type = t
	default:
		problems = append(problems, fmt.Sprintf("type must be a string, got %T", t))
	}

	if raw, ok := s[keyCompute]; ok && raw != nil {
		c, callable := field.AsComputable(raw)
		if !callable {
			problems = append(problems, fmt.Sprintf("compute must be callable, got %T", raw))
		}
		p.Compute = c
	}

	var errs []string
	p.Dependencies, errs = stringList(keyDependencies, s[keyDependencies])
	problems = append(problems, errs...)
	p.Relations, errs = stringList(keyRelations, s[keyRelations])
	problems = append(problems, errs...)

	ops, errs := stringList(keyOperators, s[keyOperators])
	problems = append(problems, errs...)
	for _, op := range ops {
		p.Operators = append(p.Operators, field.Operator(op))
	}

	if raw, ok := s[keyValues]; ok && raw != nil {
		if vals, isList := raw.([]any); isList {
			p.Values = vals
		} else if strs, isStrings := raw.([]string); isStrings {
			for _, v := range strs {
				p.Values = append(p.Values, v)
			}
		} else {
			problems = append(problems, fmt.Sprintf("values must be a list, got %T", raw))
		}
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{keyCacheable, &p.Cacheable},
		{keyNullable, &p.Nullable},
		{keySortable, &p.Sortable},
		{keySearchable, &p.Searchable},
	}
	for _, f := range flags {
		key, dst := f.key, f.dst
		raw, ok := s[key]
		if !ok || raw == nil {
			continue
		}
		b, isBool := raw.(bool)
		if !isBool {
			problems = append(problems, fmt.Sprintf("%s must be a boolean, got %T", key, raw))
			continue
		}
		*dst = b
	}

	ttl, err := duration(s[keyCacheTTL])
	if err != nil {
		problems = append(problems, fmt.Sprintf("cache_ttl: %v", err))
	}
	p.CacheTTL = ttl

	if raw, ok := s[keyDescription]; ok && raw != nil {
		desc, isString := raw.(string)
		if !isString {
			problems = append(problems, fmt.Sprintf("description must be a string, got %T", raw))
		}
		p.Description = desc
	}
	p.DefaultValue = s[keyDefault]

	return p, problems
}

func stringList(key string, raw any) ([]string, []string) {
	switch list := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		var problems []string
		for i, v := range list {
			if v == "" {
				problems = append(problems, fmt.Sprintf("%s[%d] must be a non-empty string", key, i))
			}
		}
		return list, problems
	case []field.Operator:
		out := make([]string, len(list))
		for i, op := range list {
			out[i] = string(op)
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(list))
		var problems []string
		for i, v := range list {
			str, ok := v.(string)
			if !ok || str == "" {
				problems = append(problems, fmt.Sprintf("%s[%d] must be a non-empty string", key, i))
				continue
			}
			out = append(out, str)
		}
		return out, problems
	default:
		return nil, []string{fmt.Sprintf("%s must be a list of strings, got %T", key, raw)}
	}
}

// duration accepts time.Duration, integer/float seconds or a Go duration string.
// Sign is preserved so negative values are reported by the field rules.
func duration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("must be a duration or seconds, got %T", raw)
	}
}

// FromParams renders typed params as raw settings so they go through the same
// validation (and cycle detection) as untyped configuration.
func FromParams(p field.Params) map[string]any {
	s := map[string]any{
		keyType:         p.Type,
		keyDependencies: p.Dependencies,
		keyRelations:    p.Relations,
		keyCacheable:    p.Cacheable,
		keyCacheTTL:     p.CacheTTL,
		keyDefault:      p.DefaultValue,
		keyNullable:     p.Nullable,
		keySortable:     p.Sortable,
		keySearchable:   p.Searchable,
		keyDescription:  p.Description,
	}
	if p.Compute != nil {
		s[keyCompute] = p.Compute
	}
	if p.Operators != nil {
		s[keyOperators] = p.Operators
	}
	if p.Values != nil {
		s[keyValues] = p.Values
	}
	return s
}
