package ombra

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/oxtoacart/bpool"

	"github.com/ombra-web/ombra/internal/deps"
	"github.com/ombra-web/ombra/internal/htmlx"
	"github.com/ombra-web/ombra/internal/loader"
	"github.com/ombra-web/ombra/internal/logging"
	"github.com/ombra-web/ombra/internal/parser"
	"github.com/ombra-web/ombra/internal/renderctx"
	"github.com/ombra-web/ombra/internal/scopecss"
)

// Context behavior policies, selectable engine-wide. The isolated policy
// overrides per-call only flags; django+only treats every call as if the
// only flag were given.
const (
	ContextDjango     = "django"
	ContextDjangoOnly = "django+only"
	ContextIsolated   = "isolated"
)

// Dependency rendering modes.
const (
	DepsDocument = "document"
	DepsInline   = "inline"
)

const (
	// markerAttrPrefix prefixes the valueless identity attribute spliced
	// onto a component's root elements: data-ombra-id-c42.
	markerAttrPrefix = "data-ombra-id-"
	// ScopeAttr carries the CSS scope id on elements inside a scoped
	// component's subtree. Scoped stylesheets match on it.
	ScopeAttr = "data-ombra-scope"
)

// compiled pairs a parsed template with its static slot summary. Shared
// by every render through the bounded cache.
type compiled struct {
	tmpl  *parser.Template
	slots *slotInfo
}

// Engine ties the pieces together: the component registry, the tag set,
// template loading and caching, and the per-render pipeline.
type Engine struct {
	registry *Registry
	tags     *parser.TagSet
	files    *loader.Loader
	cache    *ristretto.Cache
	buffers  *bpool.BufferPool
	log      logging.Logger

	behavior  string
	depsMode  deps.Mode
	scopeAll  bool
	cacheSize int64
	dirs      []string
	formatter TagFormatter

	mu        sync.RWMutex
	shorthand map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithTemplateDirs sets the template search directories.
func WithTemplateDirs(dirs ...string) Option {
	return func(e *Engine) { e.dirs = dirs }
}

// WithContextBehavior selects the context policy: ContextDjango,
// ContextDjangoOnly or ContextIsolated.
func WithContextBehavior(behavior string) Option {
	return func(e *Engine) { e.behavior = behavior }
}

// WithDependencyMode selects where dependencies land: DepsDocument
// splices them before </head> and </body>, DepsInline only replaces
// explicit placeholder tags.
func WithDependencyMode(mode string) Option {
	return func(e *Engine) {
		if mode == DepsInline {
			e.depsMode = deps.ModeInline
		} else {
			e.depsMode = deps.ModeDocument
		}
	}
}

// WithCacheSize bounds the compiled-template cache, in bytes of template
// source.
func WithCacheSize(n int64) Option {
	return func(e *Engine) { e.cacheSize = n }
}

// WithScopeAll enables CSS scoping for every component that declares
// inline CSS, regardless of per-component opt-in.
func WithScopeAll(on bool) Option {
	return func(e *Engine) { e.scopeAll = on }
}

// WithTagFormatter registers a per-component tag pair for every
// registered component, derived by f.
func WithTagFormatter(f TagFormatter) Option {
	return func(e *Engine) { e.formatter = f }
}

// WithLogging configures structured logging. Level is one of debug,
// info, warn, error; format is text or json. Engines log nothing by
// default.
func WithLogging(level, format string) Option {
	return func(e *Engine) {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(level)
		cfg.Format = format
		e.log = logging.NewLogger(cfg)
	}
}

// New builds an Engine and registers the built-in tags.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		registry:  NewRegistry(),
		tags:      parser.NewTagSet(),
		log:       logging.NewNop(),
		behavior:  ContextDjango,
		depsMode:  deps.ModeDocument,
		cacheSize: 64 << 20,
		shorthand: map[string]string{},
	}
	for _, opt := range opts {
		opt(e)
	}
	switch e.behavior {
	case ContextDjango, ContextDjangoOnly, ContextIsolated:
	default:
		return nil, fmt.Errorf("ombra: unknown context behavior %q", e.behavior)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e7,
		MaxCost:     e.cacheSize,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("ombra: template cache: %w", err)
	}
	e.cache = cache
	e.buffers = bpool.NewBufferPool(64)
	e.files = loader.New(e.dirs, e.log)
	e.files.OnChange(e.invalidate)
	e.tags.Resolver = e.resolveTemplate
	if err := e.registerBuiltins(); err != nil {
		return nil, err
	}
	return e, nil
}

// Register adds a component and, when a tag formatter is configured, its
// shorthand tag pair.
func (e *Engine) Register(comp *Component) error {
	if err := e.registry.Register(comp); err != nil {
		return err
	}
	if e.formatter != nil {
		if err := e.registerShorthand(comp); err != nil {
			e.registry.Remove(comp.Name)
			return err
		}
	}
	e.log.Debug(context.Background(), "component registered", "name", comp.Name)
	return nil
}

// Registry exposes the engine's component registry.
func (e *Engine) Registry() *Registry { return e.registry }

// StartWatching watches the template directories and drops cached
// compilations of changed files until ctx is cancelled.
func (e *Engine) StartWatching(ctx context.Context) error {
	return e.files.Watch(ctx)
}

// OnTemplateChange registers fn to run whenever a watched template file
// changes, after its cached compilation is dropped. fn runs on the
// watch goroutine.
func (e *Engine) OnTemplateChange(fn func(path string)) {
	e.files.OnChange(fn)
}

// Close releases the template cache and stops watching.
func (e *Engine) Close() error {
	e.cache.Close()
	return e.files.Close()
}

func (e *Engine) invalidate(path string) {
	e.cache.Del("file|" + path)
	e.log.Debug(context.Background(), "template cache invalidated", "path", path)
}

// RenderInput configures one root component render.
type RenderInput struct {
	// Args are the component's keyword arguments.
	Args map[string]any
	// Data is the outer context, visible under the inherit-all policy and
	// through CallContext.Outer.
	Data map[string]any
	// Fills supplies content by slot name: string, SafeString,
	// templ.Component or func(io.Writer) error. The empty key targets the
	// default slot.
	Fills map[string]any
	// Only withholds the outer context, like the template-side only flag.
	Only bool
}

// Render renders one registered component as a root render, including
// dependency post-processing.
func (e *Engine) Render(ctx context.Context, name string, in *RenderInput) (string, error) {
	comp, ok := e.registry.Get(name)
	if !ok {
		return "", e.unknownComponent(name)
	}
	if in == nil {
		in = &RenderInput{}
	}
	p := newPass(e, in.Data, ctx)
	rc := renderctx.FromMap(in.Data, p)
	rc.Ctx = p.ctx
	flags := parser.FlagSet{Allowed: []string{"only"}, Present: map[string]bool{"only": in.Only}}
	if in.Only {
		flags.Set = []string{"only"}
	}
	buf := e.buffers.Get()
	defer e.buffers.Put(buf)
	if err := e.renderInstance(rc, buf, comp, in.Args, flags, nil, in.Fills); err != nil {
		e.log.Error(ctx, err, "component render failed", "component", name)
		return "", err
	}
	return e.finish(ctx, p, buf.String()), nil
}

// RenderTemplate renders a page template resolved through the template
// directories, including dependency post-processing.
func (e *Engine) RenderTemplate(ctx context.Context, name string, data map[string]any) (string, error) {
	c, err := e.fileTemplate(ctx, name)
	if err != nil {
		return "", err
	}
	return e.renderCompiled(ctx, c, name, data)
}

// RenderString renders inline template source, including dependency
// post-processing.
func (e *Engine) RenderString(ctx context.Context, src string, data map[string]any) (string, error) {
	c, err := e.inlineTemplate("inline", src)
	if err != nil {
		return "", err
	}
	return e.renderCompiled(ctx, c, "inline", data)
}

func (e *Engine) renderCompiled(ctx context.Context, c *compiled, name string, data map[string]any) (string, error) {
	p := newPass(e, data, ctx)
	rc := renderctx.FromMap(data, p)
	rc.Ctx = p.ctx
	buf := e.buffers.Get()
	defer e.buffers.Put(buf)
	if err := c.tmpl.Render(rc, buf); err != nil {
		e.log.Error(ctx, err, "template render failed", "template", name)
		return "", err
	}
	return e.finish(ctx, p, buf.String()), nil
}

// finish runs the single post-processing pass over the rendered page.
func (e *Engine) finish(ctx context.Context, p *Pass, page string) string {
	if depth := p.provideDepth(); depth != 0 {
		e.log.Warn(ctx, nil, "provide stack not empty after render", "depth", depth)
	}
	return deps.Postprocess(page, p.deps, e.depsMode)
}

// renderInstance runs the component pipeline for one instance and
// annotates any error with this boundary's breadcrumb segment.
func (e *Engine) renderInstance(rc *renderctx.Context, w io.Writer, comp *Component,
	raw map[string]any, flags parser.FlagSet, body parser.NodeList, prog map[string]any) error {

	p := passOf(rc)
	if p == nil {
		return fmt.Errorf("ombra: component %q rendered outside an engine render", comp.Name)
	}
	fr := &frame{component: comp, id: p.nextID()}
	p.pushFrame(fr)
	err := e.renderInstanceBody(rc, w, comp, fr, raw, flags, body, prog)
	p.popFrame()
	if err != nil {
		seg := comp.Name
		if fr.currentSlot != "" {
			seg = fmt.Sprintf("%s(slot:%s)", comp.Name, fr.currentSlot)
		}
		return annotate(err, seg)
	}
	return nil
}

func (e *Engine) renderInstanceBody(rc *renderctx.Context, w io.Writer, comp *Component, fr *frame,
	raw map[string]any, flags parser.FlagSet, body parser.NodeList, prog map[string]any) error {

	p := passOf(rc)

	params, extra, err := bindComponentArgs(comp, raw)
	if err != nil {
		return err
	}

	cc := &CallContext{ID: fr.id, Name: comp.Name, Params: params, Extra: extra, pass: p}
	var hookData map[string]any
	if comp.Context != nil {
		cc.injectValid = true
		hookData, err = comp.Context(cc)
		cc.injectValid = false
		if err != nil {
			return err
		}
	}

	c, err := e.componentTemplate(p.ctx, comp, cc)
	if err != nil {
		return err
	}

	st := newSlotState(c.slots)
	fr.slots = st
	fills, err := e.resolveFills(comp, c.slots, body, prog, rc)
	if err != nil {
		return err
	}
	st.resolve(fills)

	fr.scoping = comp.CSS != "" && (comp.ScopeCSS || e.scopeAll)
	fr.sentinels = fr.scoping && !comp.ScopeFills

	ictx, cleanup := e.instanceContext(rc, p, params, extra, hookData, flags)
	defer cleanup()

	buf := e.buffers.Get()
	defer e.buffers.Put(buf)
	if err := c.tmpl.Render(ictx, buf); err != nil {
		return err
	}
	st.rendered()
	fragment := buf.String()

	if fr.scoping {
		sid := scopecss.ID(comp.Name, comp.CSS)
		fragment = htmlx.Annotate(fragment, ScopeAttr, sid, htmlx.AnnotateOptions{
			SkipAttrPrefixes: []string{markerAttrPrefix, ScopeAttr},
			RegionStart:      fillRegionStart,
			RegionEnd:        fillRegionEnd,
		})
	}
	if !comp.NoMarker {
		fragment = htmlx.MarkRoots(fragment, markerAttrPrefix+fr.id)
	}

	if !comp.NoDeps {
		if err := e.registerDeps(p, fr, comp, cc); err != nil {
			return err
		}
	}

	_, err = io.WriteString(w, fragment)
	return err
}

// instanceContext builds the context a component template renders under,
// per the active policy. The cleanup restores the caller's context.
func (e *Engine) instanceContext(rc *renderctx.Context, p *Pass,
	params, extra, hookData map[string]any, flags parser.FlagSet) (*renderctx.Context, func()) {

	args := make(map[string]any, len(params)+len(extra))
	maps.Copy(args, params)
	maps.Copy(args, extra)

	isolated := e.behavior == ContextIsolated
	forwardOnly := !isolated && (flags.Has("only") || e.behavior == ContextDjangoOnly)

	if isolated || forwardOnly {
		ictx := renderctx.New(p)
		ictx.Ctx = p.ctx
		ictx.Push(args)
		if hookData != nil {
			ictx.Push(hookData)
		}
		return ictx, func() {}
	}

	rc.Push(args)
	popped := 1
	if hookData != nil {
		rc.Push(hookData)
		popped++
	}
	return rc, func() {
		for i := 0; i < popped; i++ {
			rc.Pop()
		}
	}
}

// bindComponentArgs binds raw keyword arguments against the component's
// declared signature.
func bindComponentArgs(comp *Component, raw map[string]any) (params, extra map[string]any, err error) {
	params = make(map[string]any, len(comp.Params))
	extra = map[string]any{}
	declared := map[string]bool{}
	for _, p := range comp.Params {
		declared[p.Name] = true
	}
	for _, k := range sortedKeys(raw) {
		switch {
		case declared[k]:
			params[k] = raw[k]
		case comp.AcceptExtra:
			extra[k] = raw[k]
		default:
			return nil, nil, fmt.Errorf("ombra: component %q got an unexpected keyword argument %q", comp.Name, k)
		}
	}
	for _, p := range comp.Params {
		if _, ok := params[p.Name]; ok {
			continue
		}
		if p.Required {
			return nil, nil, fmt.Errorf("ombra: component %q missing required argument %q", comp.Name, p.Name)
		}
		params[p.Name] = p.Default
	}
	return params, extra, nil
}

func (e *Engine) componentTemplate(ctx context.Context, comp *Component, cc *CallContext) (*compiled, error) {
	switch {
	case comp.Template != "":
		return e.inlineTemplate(comp.Name, comp.Template)
	case comp.TemplateFile != "":
		return e.fileTemplate(ctx, comp.TemplateFile)
	default:
		src, err := comp.TemplateFunc(cc)
		if err != nil {
			return nil, fmt.Errorf("ombra: template function of %q: %w", comp.Name, err)
		}
		return e.inlineTemplate(comp.Name, src)
	}
}

func (e *Engine) registerDeps(p *Pass, fr *frame, comp *Component, cc *CallContext) error {
	cssText := comp.CSS
	if fr.scoping {
		cssText = scopecss.Scope(comp.CSS, ScopeAttr, scopecss.ID(comp.Name, comp.CSS))
	}
	if cssText != "" {
		p.deps.Add(deps.Entry{Kind: deps.KindCSS, Inline: cssText})
	}
	if comp.JS != "" {
		p.deps.Add(deps.Entry{Kind: deps.KindJS, Inline: comp.JS})
	}
	if !comp.MediaDefs.empty() {
		if err := comp.MediaDefs.register(p.deps); err != nil {
			return err
		}
	}
	if comp.JS != "" || comp.ClientData != nil {
		in := deps.Init{Name: comp.Name, ID: cc.ID}
		args := map[string]any{}
		if comp.ClientData != nil {
			data, err := comp.ClientData(cc)
			if err != nil {
				return fmt.Errorf("ombra: client data of %q: %w", comp.Name, err)
			}
			args = data
			js, err := json.Marshal(data)
			if err != nil {
				return fmt.Errorf("ombra: client data of %q: %w", comp.Name, err)
			}
			in.DataJSON = string(js)
		}
		hash, err := deps.InputHash(args)
		if err != nil {
			return fmt.Errorf("ombra: input hash of %q: %w", comp.Name, err)
		}
		in.Hash = hash
		p.deps.AddInit(in)
	}
	return nil
}

// fileTemplate compiles a template file, cached by resolved path.
func (e *Engine) fileTemplate(ctx context.Context, name string) (*compiled, error) {
	path, err := e.files.Resolve(name)
	if err != nil {
		return nil, err
	}
	key := "file|" + path
	if v, ok := e.cache.Get(key); ok {
		if c, ok := v.(*compiled); ok {
			return c, nil
		}
		e.cache.Del(key)
	}
	content, err := e.files.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	c, err := e.compile(name, content.Source)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, c, int64(len(content.Source)))
	e.log.Debug(ctx, "template compiled", "name", name, "path", path, "hash", content.Hash[:12])
	return c, nil
}

// inlineTemplate compiles inline source, cached by content hash.
func (e *Engine) inlineTemplate(name, src string) (*compiled, error) {
	sum := sha256.Sum256([]byte(src))
	key := "inline|" + hex.EncodeToString(sum[:8])
	if v, ok := e.cache.Get(key); ok {
		if c, ok := v.(*compiled); ok {
			return c, nil
		}
		e.cache.Del(key)
	}
	c, err := e.compile(name, src)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, c, int64(len(src)))
	return c, nil
}

func (e *Engine) compile(name, src string) (*compiled, error) {
	tmpl, err := parser.Parse(name, src, e.tags)
	if err != nil {
		return nil, err
	}
	info, err := e.scanSlots(name, tmpl.Nodes)
	if err != nil {
		return nil, err
	}
	return &compiled{tmpl: tmpl, slots: info}, nil
}

// resolveTemplate backs the parser's extends resolution.
func (e *Engine) resolveTemplate(ctx context.Context, name string) (*parser.Template, error) {
	c, err := e.fileTemplate(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.tmpl, nil
}

// TagDoc describes one registered tag for tooling.
type TagDoc struct {
	Name   string   `json:"name" yaml:"name"`
	End    string   `json:"end,omitempty" yaml:"end,omitempty"`
	Params []string `json:"params,omitempty" yaml:"params,omitempty"`
	Flags  []string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Doc    string   `json:"doc,omitempty" yaml:"doc,omitempty"`
}

// TagDocs lists every registered tag sorted by name.
func (e *Engine) TagDocs() []TagDoc {
	specs := e.tags.Specs()
	out := make([]TagDoc, 0, len(specs))
	for _, s := range specs {
		d := TagDoc{Name: s.Name, End: s.End, Flags: s.Flags, Doc: s.Doc}
		for _, p := range s.Params {
			d.Params = append(d.Params, p.Name)
		}
		out = append(out, d)
	}
	return out
}
