package parser

import "fmt"

// TagError reports a malformed or misused template tag. Tag names the tag
// when known; Line is the 1-based template line.
type TagError struct {
	Tag  string
	Line int
	Msg  string
}

func (e *TagError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("ombra: tag error on line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("ombra: tag error in {%% %s %%} on line %d: %s", e.Tag, e.Line, e.Msg)
}

func tagErrf(tag string, line int, format string, args ...any) *TagError {
	return &TagError{Tag: tag, Line: line, Msg: fmt.Sprintf(format, args...)}
}
