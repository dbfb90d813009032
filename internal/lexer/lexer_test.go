package lexer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeBasicConstructs(t *testing.T) {
	tokens, err := Tokenize(`hello {{ name }} {% if ok %}yes{% endif %} {# note #}`)
	require.NoError(t, err)
	require.Len(t, tokens, 8)

	assert.Equal(t, TokenText, tokens[0].Type)
	assert.Equal(t, "hello ", tokens[0].Content)
	assert.Equal(t, Span{Start: 0, End: 6}, tokens[0].Span)

	assert.Equal(t, TokenVariable, tokens[1].Type)
	assert.Equal(t, "name", tokens[1].Content)
	assert.Equal(t, Span{Start: 6, End: 16}, tokens[1].Span)

	assert.Equal(t, TokenText, tokens[2].Type)
	assert.Equal(t, " ", tokens[2].Content)
	assert.Equal(t, TokenTag, tokens[3].Type)
	assert.Equal(t, "if ok", tokens[3].Content)
	assert.Equal(t, TokenText, tokens[4].Type)
	assert.Equal(t, "yes", tokens[4].Content)
	assert.Equal(t, TokenTag, tokens[5].Type)
	assert.Equal(t, "endif", tokens[5].Content)
	assert.Equal(t, TokenComment, tokens[7].Type)
	assert.Equal(t, "note", tokens[7].Content)
}

func TestTokenizeEmptyInput(t *testing.T) {
	tokens, err := Tokenize("")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestTokenizeTextOnly(t *testing.T) {
	tokens, err := Tokenize("no constructs here")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, TokenText, tokens[0].Type)
	assert.Equal(t, "no constructs here", tokens[0].Content)
	assert.Equal(t, 1, tokens[0].Line)
}

func TestTokenizeLineNumbers(t *testing.T) {
	src := "line one\nline two {{ v }}\n{% tag %}\ntail"
	tokens, err := Tokenize(src)
	require.NoError(t, err)
	require.Len(t, tokens, 5)
	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 2, tokens[1].Line)
	assert.Equal(t, 2, tokens[2].Line)
	assert.Equal(t, 3, tokens[3].Line)
	assert.Equal(t, "\ntail", tokens[4].Content)
	assert.Equal(t, 3, tokens[4].Line)
}

func TestTokenizeQuotedCloserInsideTag(t *testing.T) {
	src := `{% component "x" title="100% }} and %} inside" %}after`
	tokens, err := Tokenize(src)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, TokenTag, tokens[0].Type)
	assert.Equal(t, `component "x" title="100% }} and %} inside"`, tokens[0].Content)
	assert.Equal(t, TokenText, tokens[1].Type)
	assert.Equal(t, "after", tokens[1].Content)
	assert.Equal(t, len(src)-len("after"), tokens[1].Span.Start)
}

func TestTokenizeSingleQuotedAndEscapes(t *testing.T) {
	src := `{% slot 'it\'s a %} test' %}`
	tokens, err := Tokenize(src)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, TokenTag, tokens[0].Type)
	assert.Equal(t, `slot 'it\'s a %} test'`, tokens[0].Content)
}

func TestTokenizeBalancedQuotesStayIntact(t *testing.T) {
	// A quoted value without a closer inside it still lexes to the same
	// token the fast path produced.
	tokens, err := Tokenize(`{% fill "header" %}`)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, `fill "header"`, tokens[0].Content)
	assert.Equal(t, Span{Start: 0, End: 19}, tokens[0].Span)
}

func TestTokenizeLineCarryAcrossRepairedTag(t *testing.T) {
	src := "a\n{% tag \"one %}\ntwo\" %}\n{{ v }}"
	tokens, err := Tokenize(src)
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	assert.Equal(t, TokenTag, tokens[1].Type)
	assert.Equal(t, 2, tokens[1].Line)
	// The repaired tag spans a newline; subsequent tokens account for it.
	assert.Equal(t, TokenText, tokens[2].Type)
	assert.Equal(t, 3, tokens[2].Line)
	assert.Equal(t, TokenVariable, tokens[3].Type)
	assert.Equal(t, 4, tokens[3].Line)
}

func TestTokenizeUnterminatedString(t *testing.T) {
	_, err := Tokenize("text\n{% component \"open %}")
	require.Error(t, err)
	var serr *SyntaxError
	require.True(t, errors.As(err, &serr))
	assert.Contains(t, serr.Msg, "unterminated string literal")
	assert.Equal(t, 2, serr.Line)
}

func TestTokenizeUnterminatedTag(t *testing.T) {
	_, err := Tokenize("before {% component \"x\" ")
	require.Error(t, err)
	var serr *SyntaxError
	require.True(t, errors.As(err, &serr))
	assert.Contains(t, serr.Msg, "unterminated tag")
	assert.Equal(t, 1, serr.Line)
}

func TestTokenizeUnterminatedVariable(t *testing.T) {
	_, err := Tokenize("a\nb {{ open\n")
	require.Error(t, err)
	var serr *SyntaxError
	require.True(t, errors.As(err, &serr))
	assert.Contains(t, serr.Msg, "unterminated variable")
	assert.Equal(t, 2, serr.Line)
}

func TestTokenizeUnterminatedComment(t *testing.T) {
	_, err := Tokenize("{# never closed")
	require.Error(t, err)
	var serr *SyntaxError
	require.True(t, errors.As(err, &serr))
	assert.Contains(t, serr.Msg, "unterminated comment")
}

func TestTokenizeStrayOpenerBeforeLaterConstruct(t *testing.T) {
	// The dangling tag opener cannot be closed by anything ahead, while the
	// variable after it is well formed.
	_, err := Tokenize("{% dangling {{ v }}")
	require.Error(t, err)
	var serr *SyntaxError
	require.True(t, errors.As(err, &serr))
	assert.Contains(t, serr.Msg, "unterminated tag")
}

func TestTokenTypeString(t *testing.T) {
	assert.Equal(t, "text", TokenText.String())
	assert.Equal(t, "tag", TokenTag.String())
	assert.Equal(t, "variable", TokenVariable.String())
	assert.Equal(t, "comment", TokenComment.String())
}
