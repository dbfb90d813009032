package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/ombra-web/ombra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List the template tags the engine understands",
	Long: `List the built-in template tags with their end tags, parameters and
flags.

Examples:
  ombra list              # Table of tags and signatures
  ombra list -f yaml      # Output as YAML
  ombra list -f json      # Output as JSON`,
	RunE: runList,
}

var listFormat string

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "Output format (table, json, yaml)")
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := ombra.New()
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer e.Close()

	docs := e.TagDocs()
	switch strings.ToLower(listFormat) {
	case "table":
		return writeTagTable(cmd.OutOrStdout(), docs)
	case "json":
		return writeTagJSON(cmd.OutOrStdout(), docs)
	case "yaml":
		return writeTagYAML(cmd.OutOrStdout(), docs)
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", listFormat)
	}
}

func writeTagTable(w io.Writer, docs []ombra.TagDoc) error {
	title := cases.Title(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
		title.String("tag"), title.String("end"), title.String("signature"), title.String("doc"))
	for _, d := range docs {
		fmt.Fprintf(tw, "{%% %s %%}\t%s\t%s\t%s\n", d.Name, d.End, signature(d), d.Doc)
	}
	return tw.Flush()
}

// signature joins a tag's parameters and flags into the form shown in
// the table: "name [only]".
func signature(d ombra.TagDoc) string {
	parts := append([]string{}, d.Params...)
	for _, f := range d.Flags {
		parts = append(parts, "["+f+"]")
	}
	return strings.Join(parts, " ")
}

func writeTagJSON(w io.Writer, docs []ombra.TagDoc) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(docs)
}

func writeTagYAML(w io.Writer, docs []ombra.TagDoc) error {
	data, err := yaml.Marshal(docs)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
