// Ombra is the command-line interface for the ombra component engine,
// with configuration management supporting multiple configuration
// sources.
//
// Configuration System:
//
//	The CLI reads configuration from multiple sources with clear precedence:
//	1. Command-line flags (--config, --dir, etc.) - highest priority
//	2. OMBRA_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (OMBRA_ENGINE_CONTEXT_BEHAVIOR, etc.)
//	4. Configuration files (.ombra.yml) - lowest priority
//
// Environment Variables:
//
//	OMBRA_CONFIG_FILE: Path to custom configuration file
//	OMBRA_ENGINE_CONTEXT_BEHAVIOR: Context policy (django, django+only, isolated)
//	OMBRA_ENGINE_DEPENDENCY_MODE: Dependency rendering mode (document, inline)
//	OMBRA_LOG_LEVEL: Log verbosity (debug, info, warn, error)
//	And so on following the OMBRA_<SECTION>_<OPTION> pattern
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ombra",
	Short: "Render component templates into finished HTML pages",
	Long: `Ombra renders server-side HTML from component templates: template tags
with slot and fill composition, per-component CSS scoping, and automatic
collection of component stylesheets and scripts into the final page.

Key Features:
  • Component tags with slot/fill composition
  • Per-component CSS scoping with stable scope ids
  • Stylesheet and script collection with page-level injection
  • Configurable context isolation policies
  • Template inheritance via extends/block

Quick Start:
  ombra render page.html                Render a template from the search dirs
  ombra render page.html -d data.yml    Render against a YAML context
  ombra css card styles.css             Scope a stylesheet for a component
  ombra list                            List the registered template tags

Documentation: https://github.com/ombra-web/ombra`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .ombra.yml, can also use OMBRA_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig initializes the configuration system with support for
// multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. OMBRA_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .ombra.yml in current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("OMBRA_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ombra")
	}

	// Enable automatic environment variable binding with OMBRA_ prefix
	// Examples: OMBRA_ENGINE_CACHE_SIZE, OMBRA_CSS_SCOPE_ALL
	viper.SetEnvPrefix("OMBRA")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Missing or malformed config files degrade to defaults without
	// failing; flags and environment variables still apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
