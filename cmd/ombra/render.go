package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ombra-web/ombra"
	"github.com/ombra-web/ombra/internal/config"
)

var renderCmd = &cobra.Command{
	Use:     "render <template>",
	Aliases: []string{"r"},
	Short:   "Render a template to a finished HTML page",
	Long: `Render a template through the component engine and write the finished
page, with component stylesheets and scripts collected and injected.

The template name is resolved against the configured search directories.
When the argument names an existing file, its directory joins the front
of the search path so sibling templates resolve too. Context variables
come from a YAML file (--data) and inline overrides (--set); components
declared in manifest files (--components) are registered before
rendering.

Examples:
  ombra render page.html                      # Render with an empty context
  ombra render page.html -d data.yml          # Context from a YAML file
  ombra render page.html --set title=Home     # Inline context variable
  ombra render page.html -c components.yml    # Register manifest components
  ombra render page.html -o dist/index.html   # Write to a file
  ombra render page.html -o out.html --watch  # Re-render on every change`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderData      string
	renderOutput    string
	renderSet       setFlags
	renderManifests []string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderData, "data", "d", "", "YAML file with the template context")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "Write the page to a file instead of stdout")
	renderCmd.Flags().VarP(&renderSet, "set", "s", "Set a context variable (key=value, repeatable)")
	renderCmd.Flags().StringSliceVarP(&renderManifests, "components", "c", nil, "Component manifest files to register")
	renderCmd.Flags().StringSlice("dir", nil, "Template search directories")
	renderCmd.Flags().String("context-behavior", "", "Context policy (django, django+only, isolated)")
	renderCmd.Flags().String("deps-mode", "", "Dependency rendering mode (document, inline)")
	renderCmd.Flags().Bool("scope-all", false, "Scope every component stylesheet")
	renderCmd.Flags().BoolP("watch", "w", false, "Watch the template directories and re-render on change")

	viper.BindPFlag("templates.dirs", renderCmd.Flags().Lookup("dir"))
	viper.BindPFlag("engine.context_behavior", renderCmd.Flags().Lookup("context-behavior"))
	viper.BindPFlag("engine.dependency_mode", renderCmd.Flags().Lookup("deps-mode"))
	viper.BindPFlag("css.scope_all", renderCmd.Flags().Lookup("scope-all"))
	viper.BindPFlag("templates.watch", renderCmd.Flags().Lookup("watch"))
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// A template named by path renders from its own directory.
	name := args[0]
	dirs := cfg.Templates.Dirs
	if info, statErr := os.Stat(name); statErr == nil && !info.IsDir() {
		dir, base := filepath.Split(name)
		if dir == "" {
			dir = "."
		}
		dirs = append([]string{filepath.Clean(dir)}, dirs...)
		name = base
	}

	e, err := ombra.New(
		ombra.WithTemplateDirs(dirs...),
		ombra.WithContextBehavior(cfg.Engine.ContextBehavior),
		ombra.WithDependencyMode(cfg.Engine.DependencyMode),
		ombra.WithCacheSize(cfg.Engine.CacheSize),
		ombra.WithScopeAll(cfg.CSS.ScopeAll),
		ombra.WithLogging(cfg.Log.Level, cfg.Log.Format),
	)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer e.Close()

	manifests := append(append([]string{}, cfg.Templates.Components...), renderManifests...)
	for _, path := range manifests {
		comps, err := loadManifest(path)
		if err != nil {
			return err
		}
		for _, c := range comps {
			if err := e.Register(c); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	renderOnce := func() error {
		data, err := renderContext()
		if err != nil {
			return err
		}
		page, err := e.RenderTemplate(ctx, name, data)
		if err != nil {
			return err
		}
		if renderOutput != "" {
			if err := os.WriteFile(renderOutput, []byte(page), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", renderOutput, err)
			}
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), page)
		return nil
	}

	if !cfg.Templates.Watch {
		return renderOnce()
	}
	return watchAndRender(ctx, cmd, e, renderOnce)
}

// watchAndRender re-renders on every template change until interrupted.
// A failed render is reported on stderr and watching continues.
func watchAndRender(ctx context.Context, cmd *cobra.Command, e *ombra.Engine, renderOnce func() error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changed := make(chan string, 1)
	e.OnTemplateChange(func(path string) {
		select {
		case changed <- path:
		default:
		}
	})
	if err := e.StartWatching(ctx); err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}

	if err := renderOnce(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "render failed: %v\n", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Watching for template changes... (Ctrl+C to stop)")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-sigChan:
			return nil
		case <-ctx.Done():
			return nil
		case path := <-changed:
			if err := renderOnce(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "render failed: %v\n", err)
				continue
			}
			if renderOutput != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s changed, wrote %s\n", filepath.Base(path), renderOutput)
			}
		}
	}
}

// renderContext merges the --data file with --set overrides, overrides
// winning.
func renderContext() (map[string]any, error) {
	data := map[string]any{}
	if renderData != "" {
		raw, err := os.ReadFile(renderData)
		if err != nil {
			return nil, fmt.Errorf("reading context: %w", err)
		}
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", renderData, err)
		}
	}
	for k, v := range renderSet {
		data[k] = v
	}
	return data, nil
}

// setFlags collects repeated --set key=value pairs.
type setFlags map[string]string

var _ pflag.Value = (*setFlags)(nil)

func (s *setFlags) String() string {
	if len(*s) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(*s))
	for k, v := range *s {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (s *setFlags) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	if *s == nil {
		*s = setFlags{}
	}
	(*s)[key] = value
	return nil
}

func (s *setFlags) Type() string { return "key=value" }
