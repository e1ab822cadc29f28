package confsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPHPLiteralScalars(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{true, "true"},
		{false, "false"},
		{"plain", "'plain'"},
		{"it's", `'it\'s'`},
		{`back\slash`, `'back\\slash'`},
		{42, "42"},
		{int64(-7), "-7"},
		{float64(3), "3"},
		{3.5, "3.5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PHPLiteral(tt.in), "input %#v", tt.in)
	}
}

func TestPHPLiteralListKeepsIntegerKeys(t *testing.T) {
	got := PHPLiteral([]any{"cloud.example.test", "localhost"})
	assert.Equal(t, "array(0 => 'cloud.example.test', 1 => 'localhost')", got)
}

func TestPHPLiteralMapKeepsStringKeys(t *testing.T) {
	got := PHPLiteral(map[string]any{"host": "localhost", "port": 6379})
	assert.Equal(t, "array('host' => 'localhost', 'port' => 6379)", got)
}

func TestPHPLiteralNested(t *testing.T) {
	got := PHPLiteral(map[string]any{
		"redis":           map[string]any{"host": "localhost"},
		"trusted_domains": []any{"a"},
	})
	assert.Equal(t, "array('redis' => array('host' => 'localhost'), 'trusted_domains' => array(0 => 'a'))", got)
}
