// Package scopecss rewrites stylesheets so their rules only match
// elements carrying a component's scope attribute. Selectors are
// rewritten segment by segment into attribute-selector form; the
// :global pseudo-selector escapes a selector back to document scope.
package scopecss

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// GlobalPseudo marks a selector, or one compound segment of it, that
// must keep document scope instead of component scope.
const GlobalPseudo = ":global"

// Rule is one construct found by ProcessRules: a qualified rule with a
// selector and a block body, or a lone statement such as an @import
// (Content empty).
type Rule struct {
	Selector string
	Content  string
}

// RuleFunc rewrites one rule. Returning the input unchanged keeps it.
type RuleFunc func(Rule) Rule

// At-rules whose block bodies contain nested style rules.
var scopedAtRules = []string{
	"@media", "@supports", "@document", "@layer",
	"@container", "@scope", "@starting-style",
}

const (
	blockMark = "%BLOCK%"
	semiMark  = "%SEMI_IN_STRING%"
	commaMark = "%COMMA_IN_STRING%"
	colonMark = "%COLON_IN_STRING%"
	lbrgMark  = "%LBRACE_IN_STRING%"
	rbrgMark  = "%RBRACE_IN_STRING%"
)

var (
	commentRe  = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	ruleRe     = regexp.MustCompile(`(\s*)([^;{}]+?)(\s*)((?:\{%BLOCK%\}?\s*;?)|(?:\s*;))`)
	compoundRe = regexp.MustCompile(`(?s)^([^:]*)(:*)(.*)$`)
	maskRe     = regexp.MustCompile(`__scoped-ph-(\d+)__`)
)

// ID derives the scope id for a component's stylesheet. The id is
// stable for a given registered name and stylesheet text, and distinct
// across components even when their stylesheets are identical.
func ID(name, css string) string {
	sum := sha256.Sum256([]byte(name + "\x00" + css))
	return "o-" + hex.EncodeToString(sum[:])[:8]
}

// Scope rewrites every style rule in css so that it matches only
// elements carrying attr=id. At-rules with nested rule bodies are
// descended into; @keyframes, @font-face and statement at-rules pass
// through untouched.
func Scope(css, attr, id string) string {
	tag := fmt.Sprintf("[%s=%q]", attr, id)
	return scopeText(css, tag)
}

func scopeText(css, tag string) string {
	return ProcessRules(css, func(r Rule) Rule {
		if strings.HasPrefix(r.Selector, "@") {
			for _, at := range scopedAtRules {
				if strings.HasPrefix(r.Selector, at) {
					r.Content = scopeText(r.Content, tag)
					break
				}
			}
			return r
		}
		r.Selector = scopeSelector(r.Selector, tag)
		return r
	})
}

// ProcessRules parses css into top-level rules and rebuilds it with
// each rule passed through fn. Comments are dropped (their newlines
// kept), strings are masked so quoted separators cannot split rules,
// and block bodies are matched brace-aware, so fn sees the full body
// of nested at-rules as a single Content string.
func ProcessRules(css string, fn RuleFunc) string {
	masked := extractBlocks(maskStrings(stripComments(css)))
	next := 0
	out := ruleRe.ReplaceAllStringFunc(masked.css, func(m string) string {
		sub := ruleRe.FindStringSubmatch(m)
		tail := sub[4]
		content := ""
		openBrace := ""
		if strings.HasPrefix(tail, "{"+blockMark) {
			if next < len(masked.blocks) {
				content = masked.blocks[next]
				next++
			}
			tail = tail[len(blockMark)+1:]
			openBrace = "{"
		}
		r := fn(Rule{Selector: sub[2], Content: content})
		return sub[1] + r.Selector + sub[3] + openBrace + r.Content + tail
	})
	return unmaskStrings(out)
}

func stripComments(css string) string {
	return commentRe.ReplaceAllStringFunc(css, func(m string) string {
		return strings.Repeat("\n", strings.Count(m, "\n"))
	})
}

// maskStrings replaces separator characters inside quoted strings with
// placeholders so rule and selector splitting never fires inside them.
func maskStrings(css string) string {
	var b strings.Builder
	b.Grow(len(css))
	quote := byte(0)
	for i := 0; i < len(css); i++ {
		c := css[i]
		if c == '\\' && i+1 < len(css) {
			b.WriteByte(c)
			i++
			b.WriteByte(css[i])
			continue
		}
		if quote != 0 {
			switch c {
			case quote:
				quote = 0
				b.WriteByte(c)
			case ';':
				b.WriteString(semiMark)
			case ',':
				b.WriteString(commaMark)
			case ':':
				b.WriteString(colonMark)
			case '{':
				b.WriteString(lbrgMark)
			case '}':
				b.WriteString(rbrgMark)
			default:
				b.WriteByte(c)
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
		}
		b.WriteByte(c)
	}
	return b.String()
}

func unmaskStrings(css string) string {
	css = strings.ReplaceAll(css, semiMark, ";")
	css = strings.ReplaceAll(css, commaMark, ",")
	css = strings.ReplaceAll(css, colonMark, ":")
	css = strings.ReplaceAll(css, lbrgMark, "{")
	return strings.ReplaceAll(css, rbrgMark, "}")
}

type blockSet struct {
	css    string
	blocks []string
}

// extractBlocks pulls every top-level {...} body out of css, leaving a
// {%BLOCK%} placeholder, so ruleRe can match rules without tripping
// over nested braces. An unterminated final block is kept.
func extractBlocks(css string) blockSet {
	var out strings.Builder
	var blocks []string
	depth := 0
	segStart := 0
	blockStart := -1
	for i := 0; i < len(css); i++ {
		switch css[i] {
		case '\\':
			i++
		case '{':
			depth++
			if depth == 1 {
				out.WriteString(css[segStart : i+1])
				blockStart = i + 1
			}
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					blocks = append(blocks, css[blockStart:i])
					out.WriteString(blockMark)
					segStart = i
					blockStart = -1
				}
			}
		}
	}
	if blockStart >= 0 {
		blocks = append(blocks, css[blockStart:])
		out.WriteString(blockMark)
	} else {
		out.WriteString(css[segStart:])
	}
	return blockSet{css: out.String(), blocks: blocks}
}

// scopeSelector rewrites one rule selector. Comma-separated selectors
// are scoped independently; attribute selectors and escape sequences
// are masked first so their contents never look like separators.
func scopeSelector(selector, tag string) string {
	m := mask(selector)
	parts := splitTopLevel(m.s, ',')
	for i, part := range parts {
		parts[i] = scopeChain(strings.TrimSpace(part), tag)
	}
	return m.restore(strings.Join(parts, ", "))
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '(':
			depth++
		case s[i] == ')':
			if depth > 0 {
				depth--
			}
		case s[i] == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// scopeChain scopes each combinator-separated compound of one selector.
// A selector beginning with :global keeps document scope as a whole.
func scopeChain(part, tag string) string {
	if rest, ok := stripGlobal(part); ok {
		return rest
	}
	var out strings.Builder
	depth := 0
	start := 0
	for i := 0; i < len(part); i++ {
		c := part[i]
		switch {
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && isCombinator(part, i):
			out.WriteString(scopeCompound(part[start:i], tag))
			out.WriteByte(c)
			start = i + 1
		}
	}
	out.WriteString(scopeCompound(part[start:], tag))
	return out.String()
}

func isCombinator(s string, i int) bool {
	switch s[i] {
	case ' ', '>', '+':
		return true
	case '~':
		return i+1 >= len(s) || s[i+1] != '='
	}
	return false
}

// scopeCompound inserts the scope attribute into one compound selector,
// before any pseudo-class or pseudo-element suffix.
func scopeCompound(seg, tag string) string {
	if seg == "" {
		return seg
	}
	if rest, ok := stripGlobal(seg); ok {
		return rest
	}
	sub := compoundRe.FindStringSubmatch(seg)
	return sub[1] + tag + sub[2] + sub[3]
}

// stripGlobal reports whether s starts with the :global escape and, if
// so, returns it with the escape removed.
func stripGlobal(s string) (string, bool) {
	if !strings.HasPrefix(s, GlobalPseudo) {
		return s, false
	}
	rest := s[len(GlobalPseudo):]
	if rest == "" {
		return "", true
	}
	switch rest[0] {
	case '(':
		depth := 1
		for i := 1; i < len(rest); i++ {
			switch rest[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return rest[1:i] + rest[i+1:], true
				}
			}
		}
		return strings.TrimSpace(rest[1:]), true
	case ' ', '\t', '\n':
		return strings.TrimSpace(rest), true
	}
	return s, false
}

type maskedSelector struct {
	s     string
	saved []string
}

// mask hides attribute selectors and backslash escapes behind inert
// placeholders so splitting and attribute insertion cannot fire inside
// them. restore puts the originals back.
func mask(selector string) *maskedSelector {
	m := &maskedSelector{}
	var b strings.Builder
	for i := 0; i < len(selector); i++ {
		c := selector[i]
		switch {
		case c == '\\' && i+1 < len(selector):
			b.WriteString(m.save(selector[i : i+2]))
			i++
		case c == '[':
			end := strings.IndexByte(selector[i:], ']')
			if end < 0 {
				b.WriteString(selector[i:])
				i = len(selector)
				continue
			}
			b.WriteString(m.save(selector[i : i+end+1]))
			i += end
		default:
			b.WriteByte(c)
		}
	}
	m.s = b.String()
	return m
}

func (m *maskedSelector) save(s string) string {
	m.saved = append(m.saved, s)
	return fmt.Sprintf("__scoped-ph-%d__", len(m.saved)-1)
}

func (m *maskedSelector) restore(s string) string {
	return maskRe.ReplaceAllStringFunc(s, func(ph string) string {
		idx, err := strconv.Atoi(maskRe.FindStringSubmatch(ph)[1])
		if err != nil || idx >= len(m.saved) {
			return ph
		}
		return m.saved[idx]
	})
}
