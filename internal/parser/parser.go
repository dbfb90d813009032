package parser

import (
	"context"
	"io"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/ombra-web/ombra/internal/lexer"
	"github.com/ombra-web/ombra/internal/renderctx"
)

// RenderFunc renders one occurrence of a registered tag.
type RenderFunc func(n *TagNode, ctx *renderctx.Context, w io.Writer) error

// TagSpec is one entry of the tag registry: argument schema, allowed
// flags, block structure and render function.
type TagSpec struct {
	Name         string
	Params       []ParamSpec
	Flags        []string
	AcceptsExtra bool
	// End names the closing tag for block tags; empty means standalone.
	// Block tags may self-close with a trailing "/" bit.
	End    string
	Render RenderFunc
	// Doc is a one-line description surfaced by tooling.
	Doc string
}

func (s *TagSpec) paramNamed(name string) *ParamSpec {
	for i := range s.Params {
		if s.Params[i].Name == name {
			return &s.Params[i]
		}
	}
	return nil
}

// tagNameRe is the shape a registered tag name must have. Tag formatters
// produce these names at registration time, so a formatter emitting
// whitespace or delimiter characters is rejected here.
var tagNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.-]*$`)

// builtinTags are reserved by the parser itself.
var builtinTags = map[string]bool{
	"if": true, "elif": true, "else": true, "endif": true,
	"for": true, "endfor": true,
	"block": true, "endblock": true,
	"extends": true,
}

// TagSet is the registry of custom tags: a table from tag name to its
// schema, flags and render function, filled by plain Register calls.
type TagSet struct {
	specs map[string]*TagSpec
	ends  map[string]string // end-tag name → opening tag name

	// Resolver loads another template by name, under the cancellation
	// context of the render that needs it. Required for extends.
	Resolver func(ctx context.Context, name string) (*Template, error)
}

// NewTagSet returns an empty registry.
func NewTagSet() *TagSet {
	return &TagSet{
		specs: map[string]*TagSpec{},
		ends:  map[string]string{},
	}
}

// Register adds a tag spec. Names produced by tag formatters land here, so
// malformed names (empty, whitespace, delimiter characters) are rejected
// as tag-syntax errors rather than silently registered.
func (ts *TagSet) Register(spec *TagSpec) error {
	if !tagNameRe.MatchString(spec.Name) {
		return tagErrf(spec.Name, 0, "invalid tag name %q", spec.Name)
	}
	if spec.End != "" && !tagNameRe.MatchString(spec.End) {
		return tagErrf(spec.Name, 0, "invalid end-tag name %q", spec.End)
	}
	if builtinTags[spec.Name] || ts.ends[spec.Name] != "" {
		return tagErrf(spec.Name, 0, "tag name %q is reserved", spec.Name)
	}
	if _, dup := ts.specs[spec.Name]; dup {
		return tagErrf(spec.Name, 0, "tag %q already registered", spec.Name)
	}
	ts.specs[spec.Name] = spec
	if spec.End != "" {
		ts.ends[spec.End] = spec.Name
	}
	return nil
}

// Lookup finds a registered tag spec.
func (ts *TagSet) Lookup(name string) (*TagSpec, bool) {
	s, ok := ts.specs[name]
	return s, ok
}

// Specs returns all registered specs sorted by name.
func (ts *TagSet) Specs() []*TagSpec {
	names := slices.Sorted(maps.Keys(ts.specs))
	out := make([]*TagSpec, len(names))
	for i, n := range names {
		out[i] = ts.specs[n]
	}
	return out
}

// Template is a compiled template: an immutable node tree shared by many
// renders.
type Template struct {
	Name    string
	Nodes   NodeList
	blocks  map[string]*BlockNode
	extends *ExtendsNode
}

// Render writes the template. A template opening with extends renders its
// parent chain instead of its own node list.
func (t *Template) Render(ctx *renderctx.Context, w io.Writer) error {
	if t.extends != nil {
		return t.extends.render(ctx, w)
	}
	return t.Nodes.Render(ctx, w)
}

// Blocks lists the names of inheritance blocks declared in this template.
func (t *Template) Blocks() []string {
	return slices.Sorted(maps.Keys(t.blocks))
}

// Parse compiles template source against a tag registry.
func Parse(name, src string, ts *TagSet) (*Template, error) {
	tokens, err := lexer.Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, ts: ts}
	nodes, _, err := p.parseUntil(nil)
	if err != nil {
		return nil, err
	}
	t := &Template{Name: name, Nodes: nodes}
	if err := t.collect(); err != nil {
		return nil, err
	}
	return t, nil
}

// collect gathers block declarations and validates the extends position.
func (t *Template) collect() error {
	t.blocks = map[string]*BlockNode{}
	var collectErr error
	Walk(t.Nodes, func(n Node) bool {
		if collectErr != nil {
			return false
		}
		switch b := n.(type) {
		case *BlockNode:
			if _, dup := t.blocks[b.Name]; dup {
				collectErr = tagErrf("block", b.Line(), "block %q appears more than once", b.Name)
				return false
			}
			t.blocks[b.Name] = b
		case *ExtendsNode:
			if t.extends != nil {
				collectErr = tagErrf("extends", b.Line(), "template extends more than one parent")
				return false
			}
			t.extends = b
		}
		return true
	})
	if collectErr != nil {
		return collectErr
	}
	if t.extends != nil {
		for _, n := range t.Nodes {
			if n == t.extends {
				break
			}
			if txt, ok := n.(*TextNode); ok && strings.TrimSpace(txt.Text) == "" {
				continue
			}
			return tagErrf("extends", t.extends.Line(), "extends must be the first tag in the template")
		}
		t.extends.owner = t
	}
	return nil
}

type parser struct {
	tokens   []lexer.Token
	pos      int
	ts       *TagSet
	lastLine int
}

// parseUntil builds a node list until it consumes a tag named in stop,
// returning that name. An empty end name means the token stream ran out.
func (p *parser) parseUntil(stop map[string]bool) (NodeList, string, error) {
	var nodes NodeList
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		p.pos++
		p.lastLine = tok.Line
		switch tok.Type {
		case lexer.TokenText:
			nodes = append(nodes, &TextNode{Text: tok.Content, line: tok.Line})
		case lexer.TokenComment:
			// dropped
		case lexer.TokenVariable:
			expr, err := CompileExpr(tok.Content, tok.Line)
			if err != nil {
				return nil, "", err
			}
			nodes = append(nodes, &VariableNode{Expr: expr, line: tok.Line})
		case lexer.TokenTag:
			name, rest := splitTagName(tok.Content)
			if name == "" {
				return nil, "", tagErrf("", tok.Line, "empty tag")
			}
			if stop[name] {
				return nodes, name, nil
			}
			node, err := p.parseTag(name, rest, tok)
			if err != nil {
				return nil, "", err
			}
			if node != nil {
				nodes = append(nodes, node)
			}
		}
	}
	if len(stop) > 0 {
		return nil, "", tagErrf("", p.lastLine, "unclosed tag, expected %s", joinNames(stop))
	}
	return nodes, "", nil
}

func (p *parser) parseTag(name, rest string, tok lexer.Token) (Node, error) {
	switch name {
	case "if":
		return p.parseIf(rest, tok.Line)
	case "for":
		return p.parseFor(rest, tok.Line)
	case "block":
		return p.parseBlock(rest, tok.Line)
	case "extends":
		return p.parseExtends(rest, tok.Line)
	case "elif", "else", "endif", "endfor", "endblock":
		return nil, tagErrf(name, tok.Line, "unexpected tag")
	}
	if opener, isEnd := p.ts.ends[name]; isEnd {
		return nil, tagErrf(name, tok.Line, "unexpected tag, no open {%% %s %%}", opener)
	}
	spec, ok := p.ts.Lookup(name)
	if !ok {
		return nil, tagErrf(name, tok.Line, "unknown tag")
	}
	bits := SplitBits(rest)
	selfClosing := false
	if len(bits) > 0 && bits[len(bits)-1] == "/" {
		selfClosing = true
		bits = bits[:len(bits)-1]
	}
	args, err := ParseArgs(name, tok.Line, bits, spec)
	if err != nil {
		return nil, err
	}
	node := &TagNode{Spec: spec, Args: args, line: tok.Line}
	if spec.End != "" && !selfClosing {
		body, _, err := p.parseUntilOrFail(map[string]bool{spec.End: true})
		if err != nil {
			return nil, err
		}
		node.Body = body
	}
	return node, nil
}

// parseUntilOrFail is parseUntil for bodies that must be closed.
func (p *parser) parseUntilOrFail(stop map[string]bool) (NodeList, string, error) {
	nodes, end, err := p.parseUntil(stop)
	if err != nil {
		return nil, "", err
	}
	if end == "" {
		return nil, "", tagErrf("", p.lastLine, "unclosed tag, expected %s", joinNames(stop))
	}
	return nodes, end, nil
}

func splitTagName(content string) (name, rest string) {
	content = strings.TrimSpace(content)
	if i := strings.IndexAny(content, " \t\n\r"); i >= 0 {
		return content[:i], strings.TrimSpace(content[i:])
	}
	return content, ""
}

func joinNames(set map[string]bool) string {
	return strings.Join(slices.Sorted(maps.Keys(set)), " or ")
}
