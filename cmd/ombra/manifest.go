package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ombra-web/ombra"
)

// manifest is the YAML shape of a component manifest file. It covers the
// declarative subset of a component: template source, parameter
// signature, inline and file-based assets, and the scoping switches.
// Components needing Go hooks register through the library instead.
//
//	components:
//	  - name: card
//	    template_file: card.html
//	    params:
//	      - title
//	      - footer: ""
//	    css_file: card.css
//	    scope_css: true
//	    media:
//	      css:
//	        print: [/static/card-print.css]
//	      js: [/static/card.js]
type manifest struct {
	Components []manifestComponent `yaml:"components"`
}

type manifestComponent struct {
	Name         string          `yaml:"name"`
	Template     string          `yaml:"template"`
	TemplateFile string          `yaml:"template_file"`
	Params       []manifestParam `yaml:"params"`
	AcceptExtra  bool            `yaml:"accept_extra"`
	CSS          string          `yaml:"css"`
	CSSFile      string          `yaml:"css_file"`
	JS           string          `yaml:"js"`
	JSFile       string          `yaml:"js_file"`
	Media        manifestMedia   `yaml:"media"`
	ScopeCSS     bool            `yaml:"scope_css"`
	ScopeFills   bool            `yaml:"scope_fills"`
	NoMarker     bool            `yaml:"no_marker"`
	NoDeps       bool            `yaml:"no_deps"`
}

type manifestMedia struct {
	CSS map[string][]string `yaml:"css"`
	JS  []string            `yaml:"js"`
}

// manifestParam accepts either a bare name (required parameter) or a
// single name-to-default mapping (optional parameter).
type manifestParam struct {
	Name       string
	Default    any
	HasDefault bool
}

func (p *manifestParam) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		return n.Decode(&p.Name)
	}
	if n.Kind == yaml.MappingNode && len(n.Content) == 2 {
		if err := n.Content[0].Decode(&p.Name); err != nil {
			return err
		}
		if err := n.Content[1].Decode(&p.Default); err != nil {
			return err
		}
		p.HasDefault = true
		return nil
	}
	return fmt.Errorf("line %d: param must be a name or a single name: default pair", n.Line)
}

// loadManifest reads a manifest file and builds the declared components.
// Relative css_file/js_file paths resolve against the manifest's own
// directory.
func loadManifest(path string) ([]*ombra.Component, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	base := filepath.Dir(path)
	comps := make([]*ombra.Component, 0, len(m.Components))
	for _, mc := range m.Components {
		c, err := mc.component(base)
		if err != nil {
			return nil, fmt.Errorf("%s: component %q: %w", path, mc.Name, err)
		}
		comps = append(comps, c)
	}
	return comps, nil
}

func (mc manifestComponent) component(base string) (*ombra.Component, error) {
	c := &ombra.Component{
		Name:         mc.Name,
		Template:     mc.Template,
		TemplateFile: mc.TemplateFile,
		AcceptExtra:  mc.AcceptExtra,
		CSS:          mc.CSS,
		JS:           mc.JS,
		ScopeCSS:     mc.ScopeCSS,
		ScopeFills:   mc.ScopeFills,
		NoMarker:     mc.NoMarker,
		NoDeps:       mc.NoDeps,
	}
	if mc.CSSFile != "" {
		if c.CSS != "" {
			return nil, fmt.Errorf("both css and css_file set")
		}
		raw, err := os.ReadFile(filepath.Join(base, mc.CSSFile))
		if err != nil {
			return nil, err
		}
		c.CSS = string(raw)
	}
	if mc.JSFile != "" {
		if c.JS != "" {
			return nil, fmt.Errorf("both js and js_file set")
		}
		raw, err := os.ReadFile(filepath.Join(base, mc.JSFile))
		if err != nil {
			return nil, err
		}
		c.JS = string(raw)
	}
	for _, p := range mc.Params {
		c.Params = append(c.Params, ombra.Param{Name: p.Name, Required: !p.HasDefault, Default: p.Default})
	}
	if len(mc.Media.CSS) > 0 || len(mc.Media.JS) > 0 {
		css := make(map[string]any, len(mc.Media.CSS))
		for media, paths := range mc.Media.CSS {
			css[media] = paths
		}
		c.MediaDefs = ombra.Media{CSS: css, JS: mc.Media.JS}
	}
	return c, nil
}
