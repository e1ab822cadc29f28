// Package confsync converges the application's configuration store toward a
// declared set of entries. It diffs the declaration against the live
// configuration, imports only the differing subset, and reverts the import
// when it breaks the compatibility check.
package confsync

import (
	"reflect"
	"sort"
)

// Changes is the subset of a declaration that differs from the live
// configuration. A nil value means the key must be removed.
type Changes struct {
	System map[string]any            `json:"system,omitempty"`
	Apps   map[string]map[string]any `json:"apps,omitempty"`
}

// Empty reports whether the live configuration already satisfies the
// declaration.
func (c Changes) Empty() bool {
	if len(c.System) > 0 {
		return false
	}
	for _, app := range c.Apps {
		if len(app) > 0 {
			return false
		}
	}
	return true
}

// Keys lists the changed key paths, sorted, for logging.
func (c Changes) Keys() []string {
	var keys []string
	for k := range c.System {
		keys = append(keys, "system:"+k)
	}
	for app, vals := range c.Apps {
		for k := range vals {
			keys = append(keys, "apps:"+app+":"+k)
		}
	}
	sort.Strings(keys)
	return keys
}

// diffMap returns the entries of desired that are absent from or different
// in current. Keys present only in current are left alone; convergence never
// removes what the declaration does not mention. A nil desired value is kept
// in the result only while the key still exists, marking it for removal.
func diffMap(desired, current map[string]any) map[string]any {
	out := make(map[string]any)
	for k, want := range desired {
		have, exists := current[k]
		if want == nil {
			if exists {
				out[k] = nil
			}
			continue
		}
		if wm, ok := want.(map[string]any); ok {
			if hm, ok := have.(map[string]any); ok && exists {
				if sub := diffMap(wm, hm); len(sub) > 0 {
					out[k] = sub
				}
				continue
			}
			out[k] = wm
			continue
		}
		if !exists || !valueEqual(want, have) {
			out[k] = want
		}
	}
	return out
}

// valueEqual compares configuration values across the YAML/JSON boundary,
// where the same number arrives as int on one side and float64 on the other.
func valueEqual(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}
