package confsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/ncsteward/ncsteward/pkg/occ"
)

// DefaultSeparator splits nested configuration key paths.
const DefaultSeparator = ":"

// SystemGet reads one system configuration value. Nested keys are addressed
// with the separator, e.g. "redis:host".
func (s *Syncer) SystemGet(ctx context.Context, key, separator string) (any, error) {
	out, err := s.cli.Occ(ctx, occ.Command{
		Name: "config:system:get",
		Args: splitKey(key, separator),
		JSON: true,
	})
	if err != nil {
		return nil, err
	}
	return out.Parsed, nil
}

// SystemSet writes one system configuration value. The value type is
// discovered from the Go value so booleans and numbers survive the trip
// through the command line as their own types, not strings.
func (s *Syncer) SystemSet(ctx context.Context, key string, value any, separator string) error {
	cmd := occ.Command{
		Name: "config:system:set",
		Args: splitKey(key, separator),
		Params: []occ.Param{
			{Name: "value", Value: fmt.Sprintf("%v", value)},
			{Name: "type", Value: valueType(value)},
		},
	}
	_, err := s.cli.Occ(ctx, cmd)
	return err
}

// SystemDelete removes one system configuration value.
func (s *Syncer) SystemDelete(ctx context.Context, key, separator string) error {
	_, err := s.cli.Occ(ctx, occ.Command{
		Name: "config:system:delete",
		Args: splitKey(key, separator),
	})
	return err
}

// AppSet writes one app configuration value.
func (s *Syncer) AppSet(ctx context.Context, app, key string, value any) error {
	_, err := s.cli.Occ(ctx, occ.Command{
		Name:   "config:app:set",
		Args:   []string{app, key},
		Params: []occ.Param{{Name: "value", Value: fmt.Sprintf("%v", value)}},
	})
	return err
}

// AppDelete removes one app configuration value.
func (s *Syncer) AppDelete(ctx context.Context, app, key string) error {
	_, err := s.cli.Occ(ctx, occ.Command{
		Name: "config:app:delete",
		Args: []string{app, key},
	})
	return err
}

func splitKey(key, separator string) []string {
	if separator == "" {
		separator = DefaultSeparator
	}
	return strings.Split(key, separator)
}

// valueType maps a Go value onto the type names config:system:set accepts.
func valueType(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case int, int64:
		return "integer"
	case float32, float64:
		return "double"
	default:
		return "string"
	}
}
