package ombra

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/ombra-web/ombra/internal/parser"
	"github.com/ombra-web/ombra/internal/renderctx"
)

// Sentinel comments delimiting fill content inside a scoped subtree. The
// annotation pass excludes the delimited regions and strips the comments.
const (
	fillRegionStart = "ombra:fill"
	fillRegionEnd   = "/ombra:fill"
)

// slotPhase tracks the slot lifecycle of one component instance.
type slotPhase int

const (
	phaseNoSlots slotPhase = iota
	phaseCollecting
	phaseResolved
	phaseRendered
)

// slotDecl is one slot declaration site in a component template. The same
// name may be declared at several sites (conditional branches, loops);
// fills target the name, each site keeps its own fallback body.
type slotDecl struct {
	name      string
	required  bool
	isDefault bool
	line      int
}

// slotInfo is the static slot summary of one compiled template.
type slotInfo struct {
	decls       []slotDecl
	names       []string // sorted unique
	required    []string // sorted unique names flagged required anywhere
	defaultName string
}

func (si *slotInfo) has(name string) bool {
	return slices.Contains(si.names, name)
}

// slotState is the render-time slot state of one component instance.
type slotState struct {
	phase slotPhase
	info  *slotInfo
	fills map[string]*fill
}

func newSlotState(info *slotInfo) *slotState {
	phase := phaseNoSlots
	if len(info.decls) > 0 {
		phase = phaseCollecting
	}
	return &slotState{phase: phase, info: info}
}

// resolve installs the matched fills and advances the state machine.
func (st *slotState) resolve(fills map[string]*fill) {
	st.fills = fills
	st.phase = phaseResolved
}

func (st *slotState) rendered() {
	st.phase = phaseRendered
}

// fill is resolved call-site content for one slot name: a captured node
// list with its context snapshot, or a programmatic producer.
type fill struct {
	name       string
	body       parser.NodeList
	renderFunc func(w io.Writer) error
	dataVar    string
	defaultVar string
	ctx        *renderctx.Context
	implicit   bool
	line       int
}

// scanSlots statically collects the slot declarations of a component
// template. Slot names and fill bindings must be literal so the scan can
// settle the slot contract before anything renders; the scan descends
// through control tags but not into nested component calls.
func (e *Engine) scanSlots(compName string, nodes parser.NodeList) (*slotInfo, error) {
	info := &slotInfo{}
	nameSet := map[string]bool{}
	requiredSet := map[string]bool{}
	var scanErr error
	parser.Walk(nodes, func(n parser.Node) bool {
		if scanErr != nil {
			return false
		}
		tn, ok := n.(*parser.TagNode)
		if !ok {
			return true
		}
		if e.isComponentTag(tn.Spec) {
			return false
		}
		if tn.Spec.Name != "slot" {
			return true
		}
		name, err := staticName(tn)
		if err != nil {
			scanErr = err
			return false
		}
		d := slotDecl{
			name:      name,
			required:  tn.Args.Flags.Has("required"),
			isDefault: tn.Args.Flags.Has("default"),
			line:      tn.Line(),
		}
		info.decls = append(info.decls, d)
		nameSet[name] = true
		if d.required {
			requiredSet[name] = true
		}
		if d.isDefault {
			if info.defaultName != "" && info.defaultName != name {
				scanErr = slotErrf("component %q flags both %q and %q as default slots",
					compName, info.defaultName, name)
				return false
			}
			info.defaultName = name
		}
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}
	info.names = slices.Sorted(maps.Keys(nameSet))
	info.required = slices.Sorted(maps.Keys(requiredSet))
	return info, nil
}

// resolveFills matches call-site content against the template's declared
// slots: explicit fill tags, implicit default content, and programmatic
// fills, in that order, with duplicate targets rejected.
func (e *Engine) resolveFills(comp *Component, info *slotInfo, body parser.NodeList,
	prog map[string]any, callCtx *renderctx.Context) (map[string]*fill, error) {

	fills := map[string]*fill{}
	var snap *renderctx.Context
	capture := func() *renderctx.Context {
		if snap == nil {
			snap = callCtx.Snapshot()
		}
		return snap
	}

	explicit, implicit, err := e.collectFills(comp, body)
	if err != nil {
		return nil, err
	}
	for _, f := range explicit {
		if !info.has(f.name) {
			return nil, slotErrf("component %q has no slot %q (available slots: %s)",
				comp.Name, f.name, availableSlots(info))
		}
		if _, dup := fills[f.name]; dup {
			return nil, slotErrf("multiple fills target slot %q of component %q", f.name, comp.Name)
		}
		f.ctx = capture()
		fills[f.name] = f
	}
	if implicit != nil {
		if info.defaultName == "" {
			return nil, slotErrf("component %q was given default content but declares no default slot (available slots: %s)",
				comp.Name, availableSlots(info))
		}
		if _, dup := fills[info.defaultName]; dup {
			return nil, slotErrf("component %q received both an explicit fill for %q and implicit default content",
				comp.Name, info.defaultName)
		}
		fills[info.defaultName] = &fill{
			name:     info.defaultName,
			body:     implicit,
			ctx:      capture(),
			implicit: true,
		}
	}
	for _, name := range sortedKeys(prog) {
		resolved := name
		if resolved == "" {
			if info.defaultName == "" {
				return nil, slotErrf("component %q declares no default slot for unnamed fill content", comp.Name)
			}
			resolved = info.defaultName
		}
		if !info.has(resolved) {
			return nil, slotErrf("component %q has no slot %q (available slots: %s)",
				comp.Name, resolved, availableSlots(info))
		}
		if _, dup := fills[resolved]; dup {
			return nil, slotErrf("multiple fills target slot %q of component %q", resolved, comp.Name)
		}
		f, err := programmaticFill(resolved, prog[name])
		if err != nil {
			return nil, err
		}
		fills[resolved] = f
	}
	for _, name := range info.required {
		if fills[name] == nil {
			return nil, slotErrf("slot %q of component %q is required but no fill was given", name, comp.Name)
		}
	}
	return fills, nil
}

// collectFills splits a call body into explicit fills or one implicit
// default body. Explicit fills may sit inside if/for blocks; any other
// non-whitespace sibling next to a fill is an error.
func (e *Engine) collectFills(comp *Component, body parser.NodeList) ([]*fill, parser.NodeList, error) {
	if len(body) == 0 {
		return nil, nil, nil
	}
	if !containsFill(body) {
		if isWhitespace(body) {
			return nil, nil, nil
		}
		return nil, body, nil
	}
	var explicit []*fill
	if err := e.checkFillBody(comp, body, &explicit); err != nil {
		return nil, nil, err
	}
	return explicit, nil, nil
}

func containsFill(nodes parser.NodeList) bool {
	for _, n := range nodes {
		switch t := n.(type) {
		case *parser.TagNode:
			if t.Spec.Name == "fill" {
				return true
			}
		case *parser.IfNode, *parser.ForNode:
			for _, cl := range n.(parser.ChildLister).ChildLists() {
				if containsFill(cl) {
					return true
				}
			}
		}
	}
	return false
}

func (e *Engine) checkFillBody(comp *Component, nodes parser.NodeList, out *[]*fill) error {
	for _, n := range nodes {
		switch t := n.(type) {
		case *parser.TextNode:
			if strings.TrimSpace(t.Text) != "" {
				return slotErrf("explicit fill tags cannot occur alongside other text (component %q, line %d)",
					comp.Name, t.Line())
			}
		case *parser.TagNode:
			if t.Spec.Name == "fill" {
				f, err := parseFill(t)
				if err != nil {
					return err
				}
				*out = append(*out, f)
				continue
			}
			return slotErrf("explicit fill tags cannot occur alongside other text (component %q, {%% %s %%} on line %d)",
				comp.Name, t.Spec.Name, t.Line())
		case *parser.IfNode, *parser.ForNode:
			for _, cl := range n.(parser.ChildLister).ChildLists() {
				if err := e.checkFillBody(comp, cl, out); err != nil {
					return err
				}
			}
		default:
			return slotErrf("explicit fill tags cannot occur alongside other text (component %q, line %d)",
				comp.Name, n.Line())
		}
	}
	return nil
}

func parseFill(tn *parser.TagNode) (*fill, error) {
	name, err := staticName(tn)
	if err != nil {
		return nil, err
	}
	if len(tn.Args.Positional) > 1 {
		return nil, &parser.TagError{Tag: "fill", Line: tn.Line(), Msg: "takes a single name argument"}
	}
	for _, kv := range tn.Args.Keyword {
		switch kv.Key {
		case "name", "data", "default":
		case "":
			return nil, &parser.TagError{Tag: "fill", Line: tn.Line(), Msg: "spread arguments are not allowed here"}
		default:
			return nil, &parser.TagError{Tag: "fill", Line: tn.Line(),
				Msg: fmt.Sprintf("unexpected keyword argument %q", kv.Key)}
		}
	}
	dataVar, err := staticKeyword(tn, "data")
	if err != nil {
		return nil, err
	}
	defaultVar, err := staticKeyword(tn, "default")
	if err != nil {
		return nil, err
	}
	if dataVar != "" && dataVar == defaultVar {
		return nil, slotErrf("fill %q binds both data and default to the same name %q (line %d)",
			name, dataVar, tn.Line())
	}
	return &fill{
		name:       name,
		body:       tn.Body,
		dataVar:    dataVar,
		defaultVar: defaultVar,
		line:       tn.Line(),
	}, nil
}

// programmaticFill wraps an API-supplied fill value. Plain strings are
// escaped like template output; SafeString, templ components and writer
// functions are trusted.
func programmaticFill(name string, v any) (*fill, error) {
	switch t := v.(type) {
	case func(w io.Writer) error:
		return &fill{name: name, renderFunc: t}, nil
	case nil:
		return nil, slotErrf("fill %q has a nil value", name)
	}
	return &fill{name: name, renderFunc: func(w io.Writer) error {
		return parser.WriteValue(w, v)
	}}, nil
}

// renderSlot renders one slot occurrence: the resolved fill when one was
// given, this occurrence's own default body otherwise.
func (e *Engine) renderSlot(n *parser.TagNode, rc *renderctx.Context, w io.Writer) (rerr error) {
	p := passOf(rc)
	var fr *frame
	if p != nil {
		fr = p.currentFrame()
	}
	if fr == nil || fr.slots == nil {
		return slotErrf("slot tag used outside a component (line %d)", n.Line())
	}
	bound, err := n.BindArgs(rc)
	if err != nil {
		return err
	}
	name, _ := bound.Params["name"].(string)
	if name == "" {
		return &parser.TagError{Tag: "slot", Line: n.Line(), Msg: "slot name must be a non-empty string"}
	}
	if fr.slots.phase < phaseResolved || !fr.slots.info.has(name) {
		return slotErrf("slot %q of component %q was not seen at scan time", name, fr.component.Name)
	}

	// The slot name stays on the frame when rendering fails so the error
	// path can name the slot it crossed.
	prev := fr.currentSlot
	fr.currentSlot = name
	defer func() {
		if rerr == nil {
			fr.currentSlot = prev
		}
	}()

	f := fr.slots.fills[name]
	if f == nil {
		if n.Body == nil {
			return nil
		}
		return n.Body.Render(rc, w)
	}
	return e.renderFill(rc, w, fr, n, f, bound.Extra)
}

// renderFill renders resolved fill content in place of a slot occurrence,
// binding the slot's scoped data and lazily rendered default per the
// fill's declared local names.
func (e *Engine) renderFill(rc *renderctx.Context, w io.Writer, fr *frame,
	slotNode *parser.TagNode, f *fill, scoped map[string]any) error {

	if fr.sentinels {
		if _, err := io.WriteString(w, "<!--"+fillRegionStart+"-->"); err != nil {
			return err
		}
	}
	if err := e.renderFillContent(rc, w, slotNode, f, scoped); err != nil {
		return err
	}
	if fr.sentinels {
		if _, err := io.WriteString(w, "<!--"+fillRegionEnd+"-->"); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) renderFillContent(rc *renderctx.Context, w io.Writer,
	slotNode *parser.TagNode, f *fill, scoped map[string]any) error {

	if f.renderFunc != nil {
		return f.renderFunc(w)
	}
	layer := map[string]any{}
	if f.dataVar != "" {
		layer[f.dataVar] = scoped
	}
	if f.defaultVar != "" {
		var sb strings.Builder
		if slotNode.Body != nil {
			if err := slotNode.Body.Render(rc, &sb); err != nil {
				return err
			}
		}
		layer[f.defaultVar] = SafeString(sb.String())
	}
	f.ctx.Push(layer)
	defer f.ctx.Pop()
	return f.body.Render(f.ctx, w)
}

// staticName resolves a tag's name argument, which must be a literal.
func staticName(tn *parser.TagNode) (string, error) {
	var expr *parser.Expression
	if len(tn.Args.Positional) > 0 {
		expr = tn.Args.Positional[0]
	} else {
		for _, kv := range tn.Args.Keyword {
			if kv.Key == "name" {
				expr = kv.Expr
				break
			}
		}
	}
	if expr == nil {
		return "", &parser.TagError{Tag: tn.Spec.Name, Line: tn.Line(), Msg: "missing name"}
	}
	return staticString(tn, expr, "name")
}

// staticKeyword resolves an optional literal-string keyword argument.
func staticKeyword(tn *parser.TagNode, key string) (string, error) {
	for _, kv := range tn.Args.Keyword {
		if kv.Key == key {
			return staticString(tn, kv.Expr, key)
		}
	}
	return "", nil
}

func staticString(tn *parser.TagNode, expr *parser.Expression, what string) (string, error) {
	v, err := expr.Resolve(renderctx.New(nil))
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", &parser.TagError{
			Tag:  tn.Spec.Name,
			Line: tn.Line(),
			Msg:  what + " must be a literal non-empty string, got " + expr.Src,
		}
	}
	return s, nil
}

func isWhitespace(nodes parser.NodeList) bool {
	for _, n := range nodes {
		t, ok := n.(*parser.TextNode)
		if !ok || strings.TrimSpace(t.Text) != "" {
			return false
		}
	}
	return true
}

func availableSlots(info *slotInfo) string {
	if len(info.names) == 0 {
		return "none"
	}
	return strings.Join(info.names, ", ")
}
