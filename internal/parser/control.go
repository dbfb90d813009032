package parser

import (
	"context"
	"io"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/ombra-web/ombra/internal/renderctx"
)

// condBranch is one arm of an if tag; a nil condition is the else arm.
type condBranch struct {
	cond *Expression
	body NodeList
}

// IfNode renders the first branch whose condition is truthy.
type IfNode struct {
	branches []condBranch
	line     int
}

func (n *IfNode) Render(ctx *renderctx.Context, w io.Writer) error {
	for _, br := range n.branches {
		if br.cond == nil {
			return br.body.Render(ctx, w)
		}
		v, err := br.cond.Resolve(ctx)
		if err != nil {
			return err
		}
		if IsTruthy(v) {
			return br.body.Render(ctx, w)
		}
	}
	return nil
}

func (n *IfNode) Line() int { return n.line }

func (n *IfNode) ChildLists() []NodeList {
	lists := make([]NodeList, len(n.branches))
	for i, br := range n.branches {
		lists[i] = br.body
	}
	return lists
}

func (p *parser) parseIf(cond string, line int) (Node, error) {
	if cond == "" {
		return nil, tagErrf("if", line, "missing condition")
	}
	expr, err := CompileExpr(cond, line)
	if err != nil {
		return nil, err
	}
	node := &IfNode{line: line}
	stop := map[string]bool{"elif": true, "else": true, "endif": true}
	for {
		body, end, err := p.parseUntilOrFail(stop)
		if err != nil {
			return nil, err
		}
		node.branches = append(node.branches, condBranch{cond: expr, body: body})
		switch end {
		case "endif":
			return node, nil
		case "else":
			body, _, err := p.parseUntilOrFail(map[string]bool{"endif": true})
			if err != nil {
				return nil, err
			}
			node.branches = append(node.branches, condBranch{body: body})
			return node, nil
		case "elif":
			cond := p.lastTagContent()
			if cond == "" {
				return nil, tagErrf("elif", p.lastLine, "missing condition")
			}
			expr, err = CompileExpr(cond, p.lastLine)
			if err != nil {
				return nil, err
			}
		}
	}
}

// lastTagContent recovers the content of the tag token parseUntil just
// consumed, for elif conditions.
func (p *parser) lastTagContent() string {
	tok := p.tokens[p.pos-1]
	_, rest := splitTagName(tok.Content)
	return rest
}

// ForNode iterates slices, arrays and maps. One loop variable binds the
// element (or the key for maps); two bind key and value of a map. Map
// iteration is in sorted key order so renders are deterministic.
type ForNode struct {
	vars []string
	src  *Expression
	body NodeList
	line int
}

func (n *ForNode) Render(ctx *renderctx.Context, w io.Writer) error {
	v, err := n.src.Resolve(ctx)
	if err != nil {
		return err
	}
	items, err := n.items(v)
	if err != nil {
		return err
	}
	var parent renderctx.ForLoop
	if pv, ok := ctx.Get(renderctx.LoopVar); ok {
		if pl, ok := pv.(renderctx.ForLoop); ok {
			parent = pl
		}
	}
	loop := renderctx.NewForLoop(parent)
	ctx.Push(map[string]any{renderctx.LoopVar: loop})
	defer ctx.Pop()
	for i, item := range items {
		loop.Advance(i, len(items))
		for vi, name := range n.vars {
			ctx.Set(name, item[vi])
		}
		if err := n.body.Render(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// items normalizes the loop source into rows, one slot per loop variable.
func (n *ForNode) items(v any) ([][]any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if len(n.vars) != 1 {
			return nil, tagErrf("for", n.line, "cannot unpack %d variables from a sequence", len(n.vars))
		}
		rows := make([][]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			rows[i] = []any{rv.Index(i).Interface()}
		}
		return rows, nil
	case reflect.Map:
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(Stringify(a.Interface()), Stringify(b.Interface()))
		})
		rows := make([][]any, 0, len(keys))
		for _, k := range keys {
			switch len(n.vars) {
			case 1:
				rows = append(rows, []any{k.Interface()})
			case 2:
				rows = append(rows, []any{k.Interface(), rv.MapIndex(k).Interface()})
			}
		}
		return rows, nil
	default:
		return nil, tagErrf("for", n.line, "cannot iterate value of type %T", v)
	}
}

func (n *ForNode) Line() int { return n.line }

func (n *ForNode) ChildLists() []NodeList { return []NodeList{n.body} }

var loopVarRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (p *parser) parseFor(rest string, line int) (Node, error) {
	fields := strings.Fields(rest)
	in := slices.Index(fields, "in")
	if in <= 0 || in == len(fields)-1 {
		return nil, tagErrf("for", line, `expected "for <var> in <expr>"`)
	}
	varSpec := strings.Join(fields[:in], "")
	vars := strings.Split(varSpec, ",")
	if len(vars) > 2 {
		return nil, tagErrf("for", line, "too many loop variables")
	}
	for _, v := range vars {
		if !loopVarRe.MatchString(v) {
			return nil, tagErrf("for", line, "invalid loop variable %q", v)
		}
	}
	src, err := CompileExpr(strings.Join(fields[in+1:], " "), line)
	if err != nil {
		return nil, err
	}
	body, _, err := p.parseUntilOrFail(map[string]bool{"endfor": true})
	if err != nil {
		return nil, err
	}
	return &ForNode{vars: vars, src: src, body: body, line: line}, nil
}

// blockContextKey is the render-state key the inheritance machinery lives
// under.
const blockContextKey = "ombra:blocks"

// BlockContext tracks block overrides while an extends chain renders.
// Children add their blocks before the parent template runs; the deepest
// child's override wins.
type BlockContext struct {
	blocks map[string][]NodeList
}

// AddBlocks records one template's blocks in front of those added before,
// so lookups from the parent find the child-most body.
func (bc *BlockContext) AddBlocks(blocks map[string]*BlockNode) {
	for name, node := range blocks {
		bc.blocks[name] = append([]NodeList{node.Body}, bc.blocks[name]...)
	}
}

// Override returns the winning body for a block name, if any.
func (bc *BlockContext) Override(name string) (NodeList, bool) {
	stack := bc.blocks[name]
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// SnapshotValue copies the override table one level deep: block bodies are
// immutable node lists, but the table and its stacks keep mutating while
// an extends chain renders.
func (bc *BlockContext) SnapshotValue() any {
	c := &BlockContext{blocks: make(map[string][]NodeList, len(bc.blocks))}
	for name, stack := range bc.blocks {
		c.blocks[name] = slices.Clone(stack)
	}
	return c
}

// BlockNode renders its own body unless a child template supplied an
// override through the active block context.
type BlockNode struct {
	Name string
	Body NodeList
	line int
}

func (n *BlockNode) Render(ctx *renderctx.Context, w io.Writer) error {
	if v, ok := ctx.State(blockContextKey); ok {
		if bc, ok := v.(*BlockContext); ok {
			if body, ok := bc.Override(n.Name); ok {
				return body.Render(ctx, w)
			}
		}
	}
	return n.Body.Render(ctx, w)
}

func (n *BlockNode) Line() int { return n.line }

func (n *BlockNode) ChildLists() []NodeList { return []NodeList{n.Body} }

func (p *parser) parseBlock(rest string, line int) (Node, error) {
	name := strings.TrimSpace(rest)
	if name == "" || len(strings.Fields(name)) != 1 {
		return nil, tagErrf("block", line, "expected a single block name")
	}
	body, _, err := p.parseUntilOrFail(map[string]bool{"endblock": true})
	if err != nil {
		return nil, err
	}
	return &BlockNode{Name: name, Body: body, line: line}, nil
}

// ExtendsNode replaces the owning template's rendering with its parent's,
// contributing the owner's blocks as overrides.
type ExtendsNode struct {
	parent   string
	resolver func(ctx context.Context, name string) (*Template, error)
	owner    *Template
	line     int
}

func (n *ExtendsNode) Render(_ *renderctx.Context, _ io.Writer) error {
	// Reached only when an extends tag sits anywhere but first; collect
	// rejects that earlier.
	return tagErrf("extends", n.line, "extends must be the first tag in the template")
}

func (n *ExtendsNode) render(ctx *renderctx.Context, w io.Writer) error {
	if n.resolver == nil {
		return tagErrf("extends", n.line, "no template resolver configured")
	}
	rctx := ctx.Ctx
	if rctx == nil {
		rctx = context.Background()
	}
	parent, err := n.resolver(rctx, n.parent)
	if err != nil {
		return tagErrf("extends", n.line, "loading parent %q: %v", n.parent, err)
	}
	var bc *BlockContext
	if v, ok := ctx.State(blockContextKey); ok {
		bc, _ = v.(*BlockContext)
	}
	if bc == nil {
		bc = &BlockContext{blocks: map[string][]NodeList{}}
		ctx.SetState(blockContextKey, bc)
	}
	bc.AddBlocks(n.owner.blocks)
	return parent.Render(ctx, w)
}

func (n *ExtendsNode) Line() int { return n.line }

func (p *parser) parseExtends(rest string, line int) (Node, error) {
	name, ok := unquote(strings.TrimSpace(rest))
	if !ok {
		return nil, tagErrf("extends", line, "expected a quoted template name")
	}
	return &ExtendsNode{parent: name, resolver: p.ts.Resolver, line: line}, nil
}

// unquote strips one level of matching single or double quotes.
func unquote(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return "", false
}
