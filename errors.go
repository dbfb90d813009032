package ombra

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ombra-web/ombra/internal/lexer"
	"github.com/ombra-web/ombra/internal/parser"
)

// Sentinel errors for the failure classes the engine reports. Each carries
// a distinct greppable prefix and supports errors.Is.
var (
	// ErrSlotContract marks slot/fill contract violations: duplicate fill
	// targets, mixed implicit and explicit fills, unfilled required slots,
	// multiple default-flagged slots, fills outside a component.
	ErrSlotContract = errors.New("ombra: slot contract violation")

	// ErrInjection marks provide/inject failures: a missing provided value
	// with no default, or Inject called outside the context function.
	ErrInjection = errors.New("ombra: injection error")

	// ErrMedia marks media declarations the coercion rules cannot resolve.
	ErrMedia = errors.New("ombra: invalid media value")

	// ErrUnknownComponent marks a component name with no registration.
	ErrUnknownComponent = errors.New("ombra: unknown component")

	// ErrDuplicateComponent marks a second registration under a taken name.
	ErrDuplicateComponent = errors.New("ombra: component already registered")

	// ErrComponent marks an invalid component declaration.
	ErrComponent = errors.New("ombra: invalid component")
)

func slotErrf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSlotContract, fmt.Sprintf(format, args...))
}

func injectErrf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInjection, fmt.Sprintf(format, args...))
}

func mediaErrf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMedia, fmt.Sprintf(format, args...))
}

// RenderError annotates an error crossing component and slot boundaries
// with the nesting path that led to it. The original error is wrapped,
// never replaced.
type RenderError struct {
	// Path holds one segment per boundary, outermost first, each a
	// component name optionally suffixed with the slot being rendered,
	// e.g. "Parent > Child(slot:content)".
	Path []string
	Err  error
}

func (e *RenderError) Error() string {
	return strings.Join(e.Path, " > ") + ": " + e.Err.Error()
}

func (e *RenderError) Unwrap() error { return e.Err }

// annotate prefixes err's breadcrumb with one more path segment, wrapping
// it on first contact.
func annotate(err error, segment string) error {
	if re, ok := err.(*RenderError); ok {
		re.Path = append([]string{segment}, re.Path...)
		return re
	}
	return &RenderError{Path: []string{segment}, Err: err}
}

// IsSyntaxError reports whether err is a template syntax error, from
// either tokenizing or tag parsing.
func IsSyntaxError(err error) bool {
	var te *parser.TagError
	if errors.As(err, &te) {
		return true
	}
	var se *lexer.SyntaxError
	return errors.As(err, &se)
}

// IsSlotContractError reports whether err is a slot/fill contract
// violation.
func IsSlotContractError(err error) bool {
	return errors.Is(err, ErrSlotContract)
}

// IsInjectionError reports whether err is a provide/inject failure.
func IsInjectionError(err error) bool {
	return errors.Is(err, ErrInjection)
}

// IsMediaError reports whether err is a media declaration failure.
func IsMediaError(err error) bool {
	return errors.Is(err, ErrMedia)
}

// IsRenderError reports whether err carries a component breadcrumb path.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}
