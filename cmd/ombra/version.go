package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ombra-web/ombra/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for ombra: the semantic version, git
commit, build time, Go version and target platform.

Examples:
  ombra version                 # Human-readable version info
  ombra version --short         # Just the version and commit
  ombra version --format json   # Output as JSON`,
	RunE: runVersion,
}

var (
	versionFormat string
	versionShort  bool
)

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.Current()
	switch versionFormat {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "text":
		if versionShort {
			fmt.Fprintln(cmd.OutOrStdout(), info.Short())
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
}
