package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ombra-web/ombra"
	"github.com/ombra-web/ombra/internal/scopecss"
)

var cssCmd = &cobra.Command{
	Use:   "css <component-name> [stylesheet]",
	Short: "Scope a stylesheet the way the engine would",
	Long: `Rewrite a stylesheet so every rule matches only elements carrying the
component's scope attribute, using the same scope id the engine derives
when the component renders. Reads the stylesheet from the named file, or
from stdin when no file is given.

Rules under a :global prefix pass through unscoped, with the prefix
stripped. @keyframes and @font-face blocks are never rewritten.

Examples:
  ombra css card styles.css             # Print the scoped stylesheet
  ombra css card styles.css --id-only   # Print just the scope id
  ombra css card -o card.scoped.css < styles.css`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCSS,
}

var (
	cssIDOnly bool
	cssOutput string
)

func init() {
	rootCmd.AddCommand(cssCmd)

	cssCmd.Flags().BoolVar(&cssIDOnly, "id-only", false, "Print only the scope id")
	cssCmd.Flags().StringVarP(&cssOutput, "output", "o", "", "Write the scoped stylesheet to a file instead of stdout")
}

func runCSS(cmd *cobra.Command, args []string) error {
	var raw []byte
	var err error
	if len(args) == 2 {
		raw, err = os.ReadFile(args[1])
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading stylesheet: %w", err)
	}

	css := string(raw)
	id := scopecss.ID(args[0], css)
	if cssIDOnly {
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}

	scoped := scopecss.Scope(css, ombra.ScopeAttr, id)
	if cssOutput != "" {
		if err := os.WriteFile(cssOutput, []byte(scoped), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", cssOutput, err)
		}
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), scoped)
	return nil
}
