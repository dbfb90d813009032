// Package config provides configuration management for ombra projects
// using Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the OMBRA_ prefix. It manages engine settings (context
// behavior, dependency rendering mode, cache sizing), template search
// directories, CSS scoping, and logging.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Context behavior values accepted by engine.context_behavior.
const (
	ContextDjango   = "django"
	ContextDjangoTo = "django+only"
	ContextIsolated = "isolated"
)

// Dependency rendering modes accepted by engine.dependency_mode.
const (
	DepsDocument = "document"
	DepsInline   = "inline"
)

type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Templates TemplatesConfig `yaml:"templates"`
	CSS       CSSConfig       `yaml:"css"`
	Log       LogConfig       `yaml:"log"`
}

type EngineConfig struct {
	ContextBehavior string `yaml:"context_behavior"`
	DependencyMode  string `yaml:"dependency_mode"`
	CacheSize       int64  `yaml:"cache_size"`
}

type TemplatesConfig struct {
	Dirs       []string `yaml:"dirs"`
	Components []string `yaml:"components"`
	Watch      bool     `yaml:"watch"`
}

type CSSConfig struct {
	ScopeAll bool `yaml:"scope_all"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle dirs set via viper (workaround for viper slice handling)
	if viper.IsSet("templates.dirs") && len(config.Templates.Dirs) == 0 {
		dirs := viper.GetStringSlice("templates.dirs")
		if len(dirs) > 0 {
			config.Templates.Dirs = dirs
		}
	}
	if len(config.Templates.Dirs) == 0 {
		config.Templates.Dirs = []string{"./templates", "./components"}
	}
	if viper.IsSet("templates.components") && len(config.Templates.Components) == 0 {
		config.Templates.Components = viper.GetStringSlice("templates.components")
	}

	// Handle bool settings set via viper (workaround for viper bool handling)
	if viper.IsSet("templates.watch") {
		config.Templates.Watch = viper.GetBool("templates.watch")
	}
	if viper.IsSet("css.scope_all") {
		config.CSS.ScopeAll = viper.GetBool("css.scope_all")
	}

	// Handle snake_case engine keys set via viper (unmarshal does not map
	// them onto the CamelCase fields)
	if viper.IsSet("engine.context_behavior") {
		config.Engine.ContextBehavior = viper.GetString("engine.context_behavior")
	}
	if viper.IsSet("engine.dependency_mode") {
		config.Engine.DependencyMode = viper.GetString("engine.dependency_mode")
	}
	if viper.IsSet("engine.cache_size") {
		config.Engine.CacheSize = viper.GetInt64("engine.cache_size")
	}

	// Apply default values for EngineConfig if not set
	if config.Engine.ContextBehavior == "" {
		config.Engine.ContextBehavior = ContextDjango
	}
	if config.Engine.DependencyMode == "" {
		config.Engine.DependencyMode = DepsDocument
	}
	if config.Engine.CacheSize == 0 {
		config.Engine.CacheSize = 64 << 20
	}

	// Apply default values for LogConfig if not set
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateEngineConfig(&config.Engine); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := validateTemplatesConfig(&config.Templates); err != nil {
		return fmt.Errorf("templates config: %w", err)
	}
	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

func validateEngineConfig(config *EngineConfig) error {
	switch config.ContextBehavior {
	case ContextDjango, ContextDjangoTo, ContextIsolated:
	default:
		return fmt.Errorf("context_behavior %q is not one of django, django+only, isolated", config.ContextBehavior)
	}
	switch config.DependencyMode {
	case DepsDocument, DepsInline:
	default:
		return fmt.Errorf("dependency_mode %q is not one of document, inline", config.DependencyMode)
	}
	if config.CacheSize < 0 {
		return fmt.Errorf("cache_size %d is negative", config.CacheSize)
	}
	return nil
}

func validateTemplatesConfig(config *TemplatesConfig) error {
	for _, dir := range config.Dirs {
		if err := validatePath(dir); err != nil {
			return fmt.Errorf("invalid template dir '%s': %w", dir, err)
		}
	}
	for _, path := range config.Components {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid component manifest '%s': %w", path, err)
		}
	}
	return nil
}

func validateLogConfig(config *LogConfig) error {
	switch config.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level %q is not one of debug, info, warn, error", config.Level)
	}
	switch config.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format %q is not one of text, json", config.Format)
	}
	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	// Reject path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	// Reject dangerous characters
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
