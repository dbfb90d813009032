package lexer

import (
	"fmt"
	"regexp"
	"strings"
)

// TokenType identifies the kind of a template token.
type TokenType int

const (
	// TokenText is literal template text between constructs.
	TokenText TokenType = iota
	// TokenTag is a {% ... %} construct.
	TokenTag
	// TokenVariable is a {{ ... }} construct.
	TokenVariable
	// TokenComment is a {# ... #} construct.
	TokenComment
)

// String returns a human-readable name for the token type.
func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "text"
	case TokenTag:
		return "tag"
	case TokenVariable:
		return "variable"
	case TokenComment:
		return "comment"
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// Span is a half-open byte-offset range [Start, End) into the source text.
type Span struct {
	Start int
	End   int
}

// Token is one lexed unit of a template. Content holds the trimmed inner
// text for tag, variable and comment tokens, and the raw text for text
// tokens. Line is the 1-based line on which the token starts.
type Token struct {
	Type    TokenType
	Content string
	Span    Span
	Line    int
}

// SyntaxError reports a malformed template construct.
type SyntaxError struct {
	Msg  string
	Line int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("ombra: syntax error on line %d: %s", e.Line, e.Msg)
}

const (
	tagStart     = "{%"
	commentStart = "{#"
)

// constructRe matches one well-formed tag, variable or comment construct.
// Non-greedy, so a tag containing a quoted "%}" is cut short at the first
// closer; Tokenize repairs such tags through the character-level scanner.
var constructRe = regexp.MustCompile(`(?s)\{%.*?%\}|\{\{.*?\}\}|\{#.*?#\}`)

// Tokenize splits template source into an ordered token sequence.
//
// Well-formed input stays entirely on the regex fast path. A tag whose
// content carries a quote character is presumed malformed (the regex stops
// at the first closing delimiter even inside a quoted string) and is
// re-scanned from its start offset by scanTag, which tracks quote state and
// honors backslash escapes. Scanning resumes after the repaired tag with
// the line count carried forward.
func Tokenize(src string) ([]Token, error) {
	var tokens []Token
	pos := 0
	line := 1
	for pos < len(src) {
		window := src[pos:]
		loc := constructRe.FindStringIndex(window)
		if loc == nil {
			if err := checkStrayOpener(window, line); err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{
				Type:    TokenText,
				Content: window,
				Span:    Span{Start: pos, End: len(src)},
				Line:    line,
			})
			break
		}
		if loc[0] > 0 {
			text := window[:loc[0]]
			if err := checkStrayOpener(text, line); err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{
				Type:    TokenText,
				Content: text,
				Span:    Span{Start: pos, End: pos + loc[0]},
				Line:    line,
			})
			line += strings.Count(text, "\n")
		}
		start := pos + loc[0]
		raw := window[loc[0]:loc[1]]
		typ := typeForOpener(raw[:2])
		if typ == TokenTag && strings.ContainsAny(raw, `"'`) {
			fixed, err := scanTag(src[start:], line)
			if err != nil {
				return nil, err
			}
			raw = fixed
		}
		tokens = append(tokens, Token{
			Type:    typ,
			Content: strings.TrimSpace(raw[2 : len(raw)-2]),
			Span:    Span{Start: start, End: start + len(raw)},
			Line:    line,
		})
		line += strings.Count(raw, "\n")
		pos = start + len(raw)
	}
	return tokens, nil
}

// scanTag re-reads one {% ... %} construct character by character from the
// start of rest. The closing delimiter only terminates the tag outside any
// quoted string; backslash-escaped quotes do not close a string.
func scanTag(rest string, startLine int) (string, error) {
	var quote byte
	i := len(tagStart)
	for i < len(rest) {
		c := rest[i]
		if quote != 0 {
			switch c {
			case '\\':
				i += 2
			case quote:
				quote = 0
				i++
			default:
				i++
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
			i++
		case '%':
			if i+1 < len(rest) && rest[i+1] == '}' {
				return rest[:i+2], nil
			}
			i++
		default:
			i++
		}
	}
	if quote != 0 {
		return "", &SyntaxError{Msg: "unterminated string literal in tag", Line: startLine}
	}
	return "", &SyntaxError{Msg: "unterminated tag", Line: startLine}
}

// checkStrayOpener rejects text that contains a construct opener with no
// matching closer anywhere ahead of it.
func checkStrayOpener(text string, line int) error {
	idx := -1
	name := ""
	for _, c := range []struct {
		opener string
		name   string
	}{
		{tagStart, "tag"},
		{"{{", "variable"},
		{commentStart, "comment"},
	} {
		if i := strings.Index(text, c.opener); i >= 0 && (idx < 0 || i < idx) {
			idx = i
			name = c.name
		}
	}
	if idx < 0 {
		return nil
	}
	openerLine := line + strings.Count(text[:idx], "\n")
	if name == "tag" {
		// The scanner distinguishes an unterminated string from an
		// unterminated tag; it cannot succeed here, since any closed tag
		// would already have matched on the fast path.
		_, err := scanTag(text[idx:], openerLine)
		return err
	}
	return &SyntaxError{
		Msg:  fmt.Sprintf("unterminated %s", name),
		Line: openerLine,
	}
}

func typeForOpener(opener string) TokenType {
	switch opener {
	case tagStart:
		return TokenTag
	case commentStart:
		return TokenComment
	default:
		return TokenVariable
	}
}
