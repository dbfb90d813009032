// Package ombra extends a Django-style HTML template language with
// reusable server-side components: named template fragments with typed
// keyword arguments, slot-based content projection, bundled CSS and JS
// dependencies, and optional style scoping.
//
// # Components
//
// A component couples a template with an argument signature and optional
// media. Exactly one template source must be set: inline Template,
// a TemplateFile resolved through the engine's template directories, or
// a TemplateFunc computed per call.
//
//	engine, _ := ombra.New(ombra.WithTemplateDirs("./components"))
//	err := engine.Register(&ombra.Component{
//		Name:     "card",
//		Template: `<div class="card"><h2>{{ title }}</h2>{% slot "body" default %}{% endslot %}</div>`,
//		Params:   []ombra.Param{{Name: "title", Required: true}},
//		CSS:      ".card { border: 1px solid #ddd; }",
//		ScopeCSS: true,
//	})
//
// Registered components render from templates through the component tag
// or, when a tag formatter is configured, through a per-component
// shorthand tag:
//
//	{% component "card" title="Hello" %}<p>Body text.</p>{% endcomponent %}
//	{% card title="Hello" %}<p>Body text.</p>{% endcard %}
//
// They also render directly from Go:
//
//	html, err := engine.Render(ctx, "card", &ombra.RenderInput{
//		Args:  map[string]any{"title": "Hello"},
//		Fills: map[string]any{"": "Body text."},
//	})
//
// # Slots and Fills
//
// Templates declare projection points with the slot tag; call sites
// supply content with fill tags. A slot flagged default receives the
// call body when no explicit fill tags are used. Slots flagged required
// fail the render when left unfilled. Fills may bind the slot's scoped
// data and lazily rendered default content to local names:
//
//	{% fill "row" data="row" default="fallback" %}
//	  {{ row.label }} or {{ fallback }}
//	{% endfill %}
//
// Fill bodies render against the context of the call site, not the
// component's own context.
//
// # Context Policies
//
// Three engine-wide policies control what a component template sees:
// ContextDjango layers the component's arguments over the caller's live
// context, ContextDjangoOnly forwards only the arguments, and
// ContextIsolated does the same while also overriding per-call only
// flags. Independent of the policy, provide tags publish values that
// descendant components read with CallContext.Inject during their
// context-building function.
//
// # Dependencies
//
// Component CSS, JS and Media declarations aggregate per render pass,
// deduplicate by content, and land in the final document in one
// post-processing step: before </head> and </body> in document mode, or
// replacing the component_css_dependencies and component_js_dependencies
// placeholder tags in inline mode. Components with JS or client data
// additionally emit one runtime init call per instance.
//
// # CSS Scoping
//
// A component with ScopeCSS set (or under an engine with scope-all
// enabled) has its stylesheet rewritten to match only elements carrying
// its scope attribute, and its rendered fragment annotated accordingly.
// Projected fill content stays unscoped unless the component sets
// ScopeFills. Root elements of every instance also carry a render-scoped
// identity attribute unless NoMarker is set.
//
// # Errors
//
// Render failures inside a component tree come back as a *RenderError
// whose Path lists the component chain from the root down to the failing
// instance, with slot crossings marked. Sentinel classifications are
// available through IsSyntaxError, IsSlotContractError, IsInjectionError
// and IsMediaError.
package ombra
