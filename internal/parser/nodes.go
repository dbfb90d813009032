package parser

import (
	"context"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/ombra-web/ombra/internal/renderctx"
)

// Node is one renderable unit of a compiled template.
type Node interface {
	Render(ctx *renderctx.Context, w io.Writer) error
	Line() int
}

// ChildLister exposes a node's nested node lists so static passes (slot
// discovery, fill detection, block collection) can walk a template without
// rendering it.
type ChildLister interface {
	ChildLists() []NodeList
}

// NodeList is an ordered sequence of nodes rendered front to back.
type NodeList []Node

// Render writes every node in order, stopping at the first error.
func (nl NodeList) Render(ctx *renderctx.Context, w io.Writer) error {
	for _, n := range nl {
		if err := n.Render(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// RenderString renders the list into a fresh string.
func (nl NodeList) RenderString(ctx *renderctx.Context) (string, error) {
	var sb strings.Builder
	if err := nl.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// TextNode is literal template text.
type TextNode struct {
	Text string
	line int
}

func (n *TextNode) Render(_ *renderctx.Context, w io.Writer) error {
	_, err := io.WriteString(w, n.Text)
	return err
}

func (n *TextNode) Line() int { return n.line }

// VariableNode evaluates an expression and writes it HTML-escaped. Safe
// values and templ components are written verbatim.
type VariableNode struct {
	Expr *Expression
	line int
}

func (n *VariableNode) Render(ctx *renderctx.Context, w io.Writer) error {
	v, err := n.Expr.Resolve(ctx)
	if err != nil {
		return err
	}
	return WriteValue(w, v)
}

func (n *VariableNode) Line() int { return n.line }

// WriteValue writes a resolved value with output escaping rules applied.
func WriteValue(w io.Writer, v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case Safe:
		_, err := io.WriteString(w, string(t))
		return err
	case templ.Component:
		return t.Render(context.Background(), w)
	}
	_, err := io.WriteString(w, html.EscapeString(Stringify(v)))
	return err
}

// TagNode is a registered custom tag occurrence: its spec, its parsed
// arguments and, for block tags, its body.
type TagNode struct {
	Spec *TagSpec
	Args *Args
	Body NodeList
	line int
}

func (n *TagNode) Render(ctx *renderctx.Context, w io.Writer) error {
	return n.Spec.Render(n, ctx, w)
}

func (n *TagNode) Line() int { return n.line }

// BindArgs evaluates this occurrence's arguments against ctx.
func (n *TagNode) BindArgs(ctx *renderctx.Context) (*BoundArgs, error) {
	return n.Args.Bind(n.Spec.Name, n.line, n.Spec, ctx)
}

func (n *TagNode) ChildLists() []NodeList {
	if n.Body == nil {
		return nil
	}
	return []NodeList{n.Body}
}

// Walk visits every node in the list depth-first. Returning false from
// visit skips the node's child lists.
func Walk(nl NodeList, visit func(Node) bool) {
	for _, n := range nl {
		if !visit(n) {
			continue
		}
		if cl, ok := n.(ChildLister); ok {
			for _, child := range cl.ChildLists() {
				Walk(child, visit)
			}
		}
	}
}
