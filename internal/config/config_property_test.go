//go:build property
// +build property

package config

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestConfigurationProperties tests configuration validation properties
func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: any combination of documented values should validate
	properties.Property("documented values validate", prop.ForAll(
		func(behavior, mode string, cacheSize int64, dir string) bool {
			cfg := &Config{
				Engine: EngineConfig{
					ContextBehavior: behavior,
					DependencyMode:  mode,
					CacheSize:       cacheSize,
				},
				Templates: TemplatesConfig{Dirs: []string{dir}},
				Log:       LogConfig{Level: "info", Format: "text"},
			}
			return validateConfig(cfg) == nil
		},
		gen.OneConstOf(ContextDjango, ContextDjangoTo, ContextIsolated),
		gen.OneConstOf(DepsDocument, DepsInline),
		gen.Int64Range(1, 1<<30),
		gen.RegexMatch(`^[a-z][a-z0-9_/]{0,20}$`),
	))

	// Property: path validation should be consistent
	properties.Property("path validation consistency", prop.ForAll(
		func(path string) bool {
			first := validatePath(path) == nil
			second := validatePath(path) == nil
			third := validatePath(path) == nil
			return first == second && second == third
		},
		gen.OneConstOf("./templates", "../templates", "/etc/passwd", "templates", ".", ""),
	))

	// Property: unknown context behaviors are always rejected
	properties.Property("unknown context behavior rejected", prop.ForAll(
		func(behavior string) bool {
			switch behavior {
			case ContextDjango, ContextDjangoTo, ContextIsolated:
				return true // Skip documented values
			}
			cfg := &EngineConfig{
				ContextBehavior: behavior,
				DependencyMode:  DepsDocument,
				CacheSize:       1,
			}
			return validateEngineConfig(cfg) != nil
		},
		gen.RegexMatch(`^[a-z]{3,10}$`),
	))

	properties.TestingRun(t)
}
