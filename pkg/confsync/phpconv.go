package confsync

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PHPLiteral renders a value as a PHP expression, the shape var_export
// produces without the whitespace. String-keyed maps and integer-indexed
// lists stay distinguishable: lists get sequential integer keys, maps keep
// their string keys, so the round trip through PHP preserves the structure.
func PHPLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return phpString(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = fmt.Sprintf("%d => %s", i, PHPLiteral(e))
		}
		return "array(" + strings.Join(parts, ", ") + ")"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s => %s", phpString(k), PHPLiteral(t[k]))
		}
		return "array(" + strings.Join(parts, ", ") + ")"
	default:
		return phpString(fmt.Sprintf("%v", t))
	}
}

func phpString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
