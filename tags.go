package ombra

import (
	"fmt"
	"io"
	"strings"

	"github.com/ombra-web/ombra/internal/deps"
	"github.com/ombra-web/ombra/internal/parser"
	"github.com/ombra-web/ombra/internal/renderctx"
)

// TagNames is a formatter's output: the tag pair registered for one
// component.
type TagNames struct {
	Start string
	End   string
}

// TagFormatter derives per-component tag names so a registered component
// can be called as {% card %}...{% endcard %} instead of the generic
// {% component "card" %} form. Formatter output is validated at
// registration time; empty or malformed names are tag-syntax errors.
type TagFormatter func(name string) TagNames

// ShorthandFormatter names the tag pair after the component itself.
func ShorthandFormatter(name string) TagNames {
	return TagNames{Start: name, End: "end" + name}
}

func (e *Engine) registerBuiltins() error {
	specs := []*parser.TagSpec{
		{
			Name:         "component",
			End:          "endcomponent",
			Params:       []parser.ParamSpec{{Name: "name", Required: true}},
			AcceptsExtra: true,
			Flags:        []string{"only"},
			Render:       e.renderComponentTag,
			Doc:          "render a registered component with arguments and fills",
		},
		{
			Name:         "slot",
			End:          "endslot",
			Params:       []parser.ParamSpec{{Name: "name", Required: true}},
			AcceptsExtra: true,
			Flags:        []string{"required", "default"},
			Render:       e.renderSlot,
			Doc:          "declare a named content slot inside a component template",
		},
		{
			Name:   "fill",
			End:    "endfill",
			Params: []parser.ParamSpec{{Name: "name", Required: true}, {Name: "data"}, {Name: "default"}},
			Render: renderStrayFill,
			Doc:    "override a named slot from a component call site",
		},
		{
			Name:         "provide",
			End:          "endprovide",
			Params:       []parser.ParamSpec{{Name: "name", Required: true}},
			AcceptsExtra: true,
			Render:       e.renderProvide,
			Doc:          "make values injectable by all nested components",
		},
		{
			Name:   "component_css_dependencies",
			Render: renderCSSPlaceholder,
			Doc:    "plant the CSS dependency placeholder",
		},
		{
			Name:   "component_js_dependencies",
			Render: renderJSPlaceholder,
			Doc:    "plant the JS dependency placeholder",
		},
	}
	for _, s := range specs {
		if err := e.tags.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// registerShorthand adds the formatter-derived tag pair for one
// component. The parser validates the names, so a formatter emitting an
// empty or malformed name surfaces as a tag-syntax error here.
func (e *Engine) registerShorthand(comp *Component) error {
	names := e.formatter(comp.Name)
	spec := &parser.TagSpec{
		Name:         names.Start,
		End:          names.End,
		AcceptsExtra: true,
		Flags:        []string{"only"},
		Render: func(n *parser.TagNode, rc *renderctx.Context, w io.Writer) error {
			bound, err := n.BindArgs(rc)
			if err != nil {
				return err
			}
			return e.renderInstance(rc, w, comp, bound.Extra, bound.Flags, n.Body, nil)
		},
		Doc: "render the " + comp.Name + " component",
	}
	if err := e.tags.Register(spec); err != nil {
		return err
	}
	e.mu.Lock()
	e.shorthand[names.Start] = comp.Name
	e.mu.Unlock()
	return nil
}

func (e *Engine) isComponentTag(spec *parser.TagSpec) bool {
	if spec.Name == "component" {
		return true
	}
	e.mu.RLock()
	_, ok := e.shorthand[spec.Name]
	e.mu.RUnlock()
	return ok
}

func (e *Engine) renderComponentTag(n *parser.TagNode, rc *renderctx.Context, w io.Writer) error {
	bound, err := n.BindArgs(rc)
	if err != nil {
		return err
	}
	name, ok := bound.Params["name"].(string)
	if !ok || name == "" {
		return &parser.TagError{Tag: "component", Line: n.Line(), Msg: "component name must be a non-empty string"}
	}
	comp, found := e.registry.Get(name)
	if !found {
		return e.unknownComponent(name)
	}
	return e.renderInstance(rc, w, comp, bound.Extra, bound.Flags, n.Body, nil)
}

func (e *Engine) unknownComponent(name string) error {
	names := e.registry.Names()
	if len(names) == 0 {
		return fmt.Errorf("%w: %q (registry is empty)", ErrUnknownComponent, name)
	}
	return fmt.Errorf("%w: %q (registered: %s)", ErrUnknownComponent, name, strings.Join(names, ", "))
}

func (e *Engine) renderProvide(n *parser.TagNode, rc *renderctx.Context, w io.Writer) error {
	p := passOf(rc)
	if p == nil {
		return injectErrf("provide used outside an engine render (line %d)", n.Line())
	}
	bound, err := n.BindArgs(rc)
	if err != nil {
		return err
	}
	name, ok := bound.Params["name"].(string)
	if !ok || name == "" {
		return &parser.TagError{Tag: "provide", Line: n.Line(), Msg: "provide name must be a non-empty string"}
	}
	p.pushProvide(name, bound.Extra)
	defer p.popProvide()
	if n.Body == nil {
		return nil
	}
	return n.Body.Render(rc, w)
}

// renderStrayFill fires only for fill tags the collector never claimed,
// which means the tag sits outside any component call.
func renderStrayFill(n *parser.TagNode, _ *renderctx.Context, _ io.Writer) error {
	return slotErrf("fill tag used outside a component call (line %d)", n.Line())
}

func renderCSSPlaceholder(_ *parser.TagNode, _ *renderctx.Context, w io.Writer) error {
	_, err := io.WriteString(w, deps.CSSPlaceholder)
	return err
}

func renderJSPlaceholder(_ *parser.TagNode, _ *renderctx.Context, w io.Writer) error {
	_, err := io.WriteString(w, deps.JSPlaceholder)
	return err
}
