package confsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffMapAddedAndChanged(t *testing.T) {
	desired := map[string]any{
		"existing": "same",
		"changed":  "new value",
		"added":    42,
	}
	current := map[string]any{
		"existing":  "same",
		"changed":   "old value",
		"unrelated": "left alone",
	}

	got := diffMap(desired, current)
	assert.Equal(t, map[string]any{"changed": "new value", "added": 42}, got)
}

func TestDiffMapNilDeletesOnlyExistingKeys(t *testing.T) {
	desired := map[string]any{"gone": nil, "never": nil}
	current := map[string]any{"gone": "still here"}

	got := diffMap(desired, current)
	assert.Equal(t, map[string]any{"gone": nil}, got)
	assert.NotContains(t, got, "never", "deleting an absent key is not a change")
}

func TestDiffMapRecursesIntoNestedMaps(t *testing.T) {
	desired := map[string]any{
		"redis": map[string]any{"host": "localhost", "port": 6379},
	}
	current := map[string]any{
		"redis": map[string]any{"host": "localhost", "port": 6380},
	}

	got := diffMap(desired, current)
	assert.Equal(t, map[string]any{"redis": map[string]any{"port": 6379}}, got)
}

func TestDiffMapNumericTypesAcrossCodecs(t *testing.T) {
	// YAML decodes 8080 as int, the live config arrives as float64 from
	// JSON. They must compare equal.
	desired := map[string]any{"port": 8080}
	current := map[string]any{"port": float64(8080)}
	assert.Empty(t, diffMap(desired, current))
}

func TestDiffMapListsCompareAsValues(t *testing.T) {
	desired := map[string]any{"trusted_domains": []any{"a", "b"}}

	same := map[string]any{"trusted_domains": []any{"a", "b"}}
	assert.Empty(t, diffMap(desired, same))

	reordered := map[string]any{"trusted_domains": []any{"b", "a"}}
	assert.Len(t, diffMap(desired, reordered), 1, "list order is significant")
}

func TestChangesEmptyAndKeys(t *testing.T) {
	assert.True(t, Changes{}.Empty())
	assert.True(t, Changes{Apps: map[string]map[string]any{"core": {}}}.Empty())

	c := Changes{
		System: map[string]any{"b": 1, "a": 2},
		Apps:   map[string]map[string]any{"core": {"k": "v"}},
	}
	assert.False(t, c.Empty())
	assert.Equal(t, []string{"apps:core:k", "system:a", "system:b"}, c.Keys())
}
