package ombra

import (
	"fmt"
	"regexp"
)

// Param declares one named parameter of a component's signature. A
// parameter without Required falls back to Default when absent.
type Param struct {
	Name     string
	Required bool
	Default  any
}

// Component declares one reusable template fragment: its template source,
// parameter signature, context hook and static assets.
//
// Exactly one of Template, TemplateFile and TemplateFunc must be set.
// Template is inline source, TemplateFile resolves through the engine's
// template directories, TemplateFunc derives the source from the built
// call context.
type Component struct {
	Name string

	Template     string
	TemplateFile string
	TemplateFunc func(cc *CallContext) (string, error)

	// Context builds the instance's own variables. It runs exactly once
	// per instance, before the template renders; cc.Inject is only valid
	// while it runs.
	Context func(cc *CallContext) (map[string]any, error)

	// Params declares the accepted arguments. Unknown keyword arguments
	// are rejected unless AcceptExtra is set, in which case they are
	// visible in the context and in cc.Extra.
	Params      []Param
	AcceptExtra bool

	// CSS and JS are inline assets registered with the dependency
	// aggregator when the component renders.
	CSS string
	JS  string

	// MediaDefs are file-based assets, grouped by media type for CSS.
	MediaDefs Media

	// ScopeCSS rewrites the inline CSS to scoped attribute selectors and
	// annotates this component's rendered subtree with the scope
	// attribute. ScopeFills extends the annotation into fill content
	// supplied by the caller, which is left untouched otherwise.
	ScopeCSS   bool
	ScopeFills bool

	// NoMarker skips the root marker attribute, for components that are
	// plumbing rather than addressable DOM.
	NoMarker bool

	// NoDeps skips dependency registration for this component entirely.
	NoDeps bool

	// ClientData supplies hydration data for the client loader. When set,
	// each rendered instance emits a registerComponentData script keyed by
	// the data's input hash.
	ClientData func(cc *CallContext) (map[string]any, error)
}

var componentNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.-]*$`)

func (c *Component) validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil component", ErrComponent)
	}
	if !componentNameRe.MatchString(c.Name) {
		return fmt.Errorf("%w: invalid name %q", ErrComponent, c.Name)
	}
	sources := 0
	if c.Template != "" {
		sources++
	}
	if c.TemplateFile != "" {
		sources++
	}
	if c.TemplateFunc != nil {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("%w: %q must declare exactly one of Template, TemplateFile, TemplateFunc", ErrComponent, c.Name)
	}
	seen := map[string]bool{}
	for _, p := range c.Params {
		if !componentNameRe.MatchString(p.Name) {
			return fmt.Errorf("%w: %q has invalid parameter name %q", ErrComponent, c.Name, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %q declares parameter %q twice", ErrComponent, c.Name, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// CallContext is the per-instance view handed to a component's hooks:
// resolved arguments, the render-scoped id, injection and the saved
// top-level context.
type CallContext struct {
	// ID is the render-scoped component id, "c1", "c2", ... within one
	// root render.
	ID string
	// Name is the registered component name.
	Name string
	// Params holds the declared arguments after binding, Extra the
	// undeclared keyword arguments when the component accepts them.
	Params map[string]any
	Extra  map[string]any

	pass        *Pass
	injectValid bool
}

// Inject returns the innermost provided value under name. A fallback may
// be supplied as a single optional argument; without one, a missing name
// is an error. Inject is only valid inside the component's Context
// function.
func (cc *CallContext) Inject(name string, fallback ...any) (any, error) {
	if !cc.injectValid {
		return nil, injectErrf("inject %q called outside the context function of %q", name, cc.Name)
	}
	if v, ok := cc.pass.lookupProvide(name); ok {
		return v, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return nil, injectErrf("no provided value named %q (component %q)", name, cc.Name)
}

// Outer returns the saved top-level context of the root render. Under the
// isolated policy this is the only route back to outer data.
func (cc *CallContext) Outer() map[string]any {
	return cc.pass.rootData
}
