package engine

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/catherinevee/custodianhub/internal/apperrors"
	"github.com/catherinevee/custodianhub/internal/filters"
)

// Value filter evaluation. Authored policies and event-derived filters
// share one vocabulary: a filter is a map carrying either a combinator
// (and / or / not over child filters), an explicit value form
// {type: value, key, value, op}, or single-key shorthand {Key: value}.

// evalFilters reports whether a descriptor passes every filter in order.
func evalFilters(specs []map[string]interface{}, r filters.Resource) (bool, error) {
	for _, spec := range specs {
		ok, err := evalFilter(spec, r)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalFilter(spec map[string]interface{}, r filters.Resource) (bool, error) {
	if children, ok := spec["and"]; ok {
		return evalCombinator(children, r, func(results []bool) bool {
			for _, v := range results {
				if !v {
					return false
				}
			}
			return true
		})
	}
	if children, ok := spec["or"]; ok {
		return evalCombinator(children, r, func(results []bool) bool {
			for _, v := range results {
				if v {
					return true
				}
			}
			return false
		})
	}
	if children, ok := spec["not"]; ok {
		ok, err := evalCombinator(children, r, func(results []bool) bool {
			for _, v := range results {
				if !v {
					return false
				}
			}
			return true
		})
		return !ok, err
	}

	if t, ok := spec["type"].(string); ok {
		if t != "value" {
			return false, apperrors.Newf(apperrors.KindPolicyExecution, "unsupported filter type %q", t)
		}
		key, _ := spec["key"].(string)
		if key == "" {
			return false, apperrors.New(apperrors.KindPolicyExecution, "value filter missing key")
		}
		op, _ := spec["op"].(string)
		return evalValue(r, key, spec["value"], op)
	}

	// Shorthand: a single-key map is an equality (or presence) test.
	if len(spec) == 1 {
		for key, want := range spec {
			return evalValue(r, key, want, "")
		}
	}
	return false, apperrors.Newf(apperrors.KindPolicyExecution, "unrecognised filter %v", spec)
}

func evalCombinator(children interface{}, r filters.Resource, combine func([]bool) bool) (bool, error) {
	list, ok := children.([]interface{})
	if !ok {
		return false, apperrors.New(apperrors.KindPolicyExecution, "combinator filter requires a list")
	}
	results := make([]bool, 0, len(list))
	for _, child := range list {
		spec, ok := child.(map[string]interface{})
		if !ok {
			return false, apperrors.New(apperrors.KindPolicyExecution, "combinator child must be a filter")
		}
		v, err := evalFilter(spec, r)
		if err != nil {
			return false, err
		}
		results = append(results, v)
	}
	return combine(results), nil
}

func evalValue(r filters.Resource, key string, want interface{}, op string) (bool, error) {
	got, found := lookup(r, key)

	// Presence tests short-circuit before any comparison.
	switch want {
	case "present", "not-null":
		return found && got != nil, nil
	case "absent":
		return !found || got == nil, nil
	case "empty":
		return !found || got == nil || fmt.Sprintf("%v", got) == "", nil
	}

	switch op {
	case "", "eq", "equal":
		return found && looseEqual(got, want), nil
	case "ne", "not-equal":
		return !found || !looseEqual(got, want), nil
	case "in":
		return found && inList(want, got), nil
	case "not-in":
		return !found || !inList(want, got), nil
	case "contains":
		return found && containsValue(got, want), nil
	case "glob":
		pattern, ok := want.(string)
		if !ok {
			return false, apperrors.New(apperrors.KindPolicyExecution, "glob filter requires a string pattern")
		}
		matched, err := path.Match(pattern, fmt.Sprintf("%v", got))
		if err != nil {
			return false, apperrors.Wrap(apperrors.KindPolicyExecution, "invalid glob pattern", err)
		}
		return found && matched, nil
	case "gt", "gte", "lt", "lte":
		return found && compareNumeric(got, want, op), nil
	}
	return false, apperrors.Newf(apperrors.KindPolicyExecution, "unsupported filter op %q", op)
}

// lookup resolves a filter key against a descriptor: tag:Name addresses the
// Tags list, dotted keys traverse nested maps, and anything else is a plain
// field.
func lookup(r filters.Resource, key string) (interface{}, bool) {
	if tagKey, ok := strings.CutPrefix(key, "tag:"); ok {
		return lookupTag(r, tagKey)
	}
	if !strings.Contains(key, ".") {
		v, ok := r[key]
		return v, ok
	}

	var current interface{} = map[string]interface{}(r)
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func lookupTag(r filters.Resource, tagKey string) (interface{}, bool) {
	tags, ok := r["Tags"].([]interface{})
	if !ok {
		return nil, false
	}
	for _, raw := range tags {
		tag, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if k, _ := tag["Key"].(string); k == tagKey {
			return tag["Value"], true
		}
	}
	return nil, false
}

// looseEqual compares across the numeric representations JSON decoding
// produces: 2 and 2.0 are the same value.
func looseEqual(got, want interface{}) bool {
	if got == want {
		return true
	}
	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	if gok && wok {
		return gf == wf
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}

func inList(list, candidate interface{}) bool {
	items, ok := list.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if looseEqual(candidate, item) {
			return true
		}
	}
	return false
}

func containsValue(got, want interface{}) bool {
	switch v := got.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", want))
	case []interface{}:
		for _, item := range v {
			if looseEqual(item, want) {
				return true
			}
		}
	}
	return false
}

func compareNumeric(got, want interface{}, op string) bool {
	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	if !gok || !wok {
		return false
	}
	switch op {
	case "gt":
		return gf > wf
	case "gte":
		return gf >= wf
	case "lt":
		return gf < wf
	case "lte":
		return gf <= wf
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
