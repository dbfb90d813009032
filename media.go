package ombra

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/a-h/templ"

	"github.com/ombra-web/ombra/internal/deps"
	"github.com/ombra-web/ombra/internal/parser"
)

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

// SafeString is markup trusted to be emitted without escaping, both as
// template output and as a pre-rendered media value or fill.
type SafeString = parser.Safe

// MediaPath is one resolved media value: a path emitted as a link/script
// reference, or pre-rendered markup emitted verbatim.
type MediaPath struct {
	Value  string
	Markup bool
}

// LiteralPath declares a media value referenced by path.
func LiteralPath(path string) MediaPath {
	return MediaPath{Value: path}
}

// PreRenderedMarkup declares a media value emitted as-is.
func PreRenderedMarkup(markup string) MediaPath {
	return MediaPath{Value: markup, Markup: true}
}

// Media groups a component's static assets: CSS paths keyed by media type
// and a flat JS list. Values may be a single path, a list of paths, or
// anything CoerceMediaPath accepts.
type Media struct {
	CSS map[string]any
	JS  any
}

// CoerceMediaPath resolves a declared media value through one ordered rule
// set: markup capability first, then path-like capability, then raw
// strings and bytes.
func CoerceMediaPath(v any) (MediaPath, error) {
	switch t := v.(type) {
	case MediaPath:
		return t, nil
	case SafeString:
		return PreRenderedMarkup(string(t)), nil
	case templ.Component:
		var sb strings.Builder
		if err := t.Render(context.Background(), &sb); err != nil {
			return MediaPath{}, mediaErrf("rendering media component: %v", err)
		}
		return PreRenderedMarkup(sb.String()), nil
	case fmt.Stringer:
		return LiteralPath(t.String()), nil
	case string:
		return LiteralPath(t), nil
	case []byte:
		return LiteralPath(string(t)), nil
	}
	return MediaPath{}, mediaErrf("cannot use %v (%T) as a media path", v, v)
}

// coerceMediaList accepts the single-or-list shapes the declaration
// surface allows.
func coerceMediaList(v any) ([]MediaPath, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []MediaPath:
		return t, nil
	case []string:
		out := make([]MediaPath, len(t))
		for i, s := range t {
			out[i] = LiteralPath(s)
		}
		return out, nil
	case []any:
		out := make([]MediaPath, 0, len(t))
		for _, item := range t {
			mp, err := CoerceMediaPath(item)
			if err != nil {
				return nil, err
			}
			out = append(out, mp)
		}
		return out, nil
	}
	mp, err := CoerceMediaPath(v)
	if err != nil {
		return nil, err
	}
	return []MediaPath{mp}, nil
}

// register resolves the declaration and feeds it to the aggregator in
// deterministic order: CSS media types sorted, paths in declared order.
func (m Media) register(a *deps.Aggregator) error {
	for _, media := range sortedKeys(m.CSS) {
		paths, err := coerceMediaList(m.CSS[media])
		if err != nil {
			return fmt.Errorf("css[%s]: %w", media, err)
		}
		for _, mp := range paths {
			e := deps.Entry{Kind: deps.KindCSS, Media: media}
			if mp.Markup {
				e.Markup = mp.Value
			} else {
				e.Path = mp.Value
			}
			a.Add(e)
		}
	}
	paths, err := coerceMediaList(m.JS)
	if err != nil {
		return fmt.Errorf("js: %w", err)
	}
	for _, mp := range paths {
		e := deps.Entry{Kind: deps.KindJS}
		if mp.Markup {
			e.Markup = mp.Value
		} else {
			e.Path = mp.Value
		}
		a.Add(e)
	}
	return nil
}

func (m Media) empty() bool {
	return len(m.CSS) == 0 && m.JS == nil
}
