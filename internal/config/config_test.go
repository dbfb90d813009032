package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name         string
		setup        func()
		expectError  bool
		expectedDirs []string
		check        func(t *testing.T, config *Config)
	}{
		{
			name: "successful load with defaults",
			setup: func() {
				viper.Reset()
			},
			expectedDirs: []string{"./templates", "./components"},
			check: func(t *testing.T, config *Config) {
				assert.Equal(t, ContextDjango, config.Engine.ContextBehavior)
				assert.Equal(t, DepsDocument, config.Engine.DependencyMode)
				assert.Equal(t, int64(64<<20), config.Engine.CacheSize)
				assert.Equal(t, "info", config.Log.Level)
				assert.Equal(t, "text", config.Log.Format)
				assert.False(t, config.Templates.Watch)
				assert.False(t, config.CSS.ScopeAll)
			},
		},
		{
			name: "successful load with custom template dirs",
			setup: func() {
				viper.Reset()
				viper.Set("templates.dirs", []string{"./custom", "./paths"})
			},
			expectedDirs: []string{"./custom", "./paths"},
		},
		{
			name: "engine settings honored",
			setup: func() {
				viper.Reset()
				viper.Set("engine.context_behavior", "isolated")
				viper.Set("engine.dependency_mode", "inline")
				viper.Set("engine.cache_size", 1<<20)
				viper.Set("templates.watch", true)
				viper.Set("css.scope_all", true)
			},
			expectedDirs: []string{"./templates", "./components"},
			check: func(t *testing.T, config *Config) {
				assert.Equal(t, ContextIsolated, config.Engine.ContextBehavior)
				assert.Equal(t, DepsInline, config.Engine.DependencyMode)
				assert.Equal(t, int64(1<<20), config.Engine.CacheSize)
				assert.True(t, config.Templates.Watch)
				assert.True(t, config.CSS.ScopeAll)
			},
		},
		{
			name: "component manifests honored",
			setup: func() {
				viper.Reset()
				viper.Set("templates.components", []string{"./components.yml"})
			},
			expectedDirs: []string{"./templates", "./components"},
			check: func(t *testing.T, config *Config) {
				assert.Equal(t, []string{"./components.yml"}, config.Templates.Components)
			},
		},
		{
			name: "invalid context behavior",
			setup: func() {
				viper.Reset()
				viper.Set("engine.context_behavior", "global")
			},
			expectError: true,
		},
		{
			name: "invalid dependency mode",
			setup: func() {
				viper.Reset()
				viper.Set("engine.dependency_mode", "defer")
			},
			expectError: true,
		},
		{
			name: "invalid log level",
			setup: func() {
				viper.Reset()
				viper.Set("log.level", "verbose")
			},
			expectError: true,
		},
		{
			name: "template dir with traversal",
			setup: func() {
				viper.Reset()
				viper.Set("templates.dirs", []string{"../outside"})
			},
			expectError: true,
		},
		{
			name: "template dir with dangerous characters",
			setup: func() {
				viper.Reset()
				viper.Set("templates.dirs", []string{"./tpl;rm -rf"})
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()

			config, err := Load()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, config)
			assert.Equal(t, tt.expectedDirs, config.Templates.Dirs)
			if tt.check != nil {
				tt.check(t, config)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, validatePath("./templates"))
	assert.NoError(t, validatePath("components/cards"))
	assert.Error(t, validatePath(""))
	assert.Error(t, validatePath("../escape"))
	assert.Error(t, validatePath("dir`cmd`"))
}
