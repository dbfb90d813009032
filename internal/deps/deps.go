// Package deps collects the CSS/JS dependencies declared by the
// components rendered during one pass and rewrites the finished page:
// placeholders are resolved, assets are inserted near </head> and
// </body>, and the client loader script is attached once.
package deps

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"html"
	"maps"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	xhtml "golang.org/x/net/html"
)

//go:embed loader.js
var loaderJS string

// Placeholder markers emitted during first-pass rendering. Exact and
// case-sensitive: the post-processor replaces the first occurrence of
// each and deletes every repeat.
const (
	CSSPlaceholder = `<link name="CSS_PLACEHOLDER">`
	JSPlaceholder  = `<script name="JS_PLACEHOLDER"></script>`
)

// Kind tells stylesheet entries apart from script entries.
type Kind string

const (
	KindCSS Kind = "css"
	KindJS  Kind = "js"
)

// Mode selects how the post-processor places rendered assets.
type Mode int

const (
	// ModeDocument treats the input as a full page: assets go just
	// before </head> and </body>, with explicit placeholders as the
	// fallback when those tags are missing.
	ModeDocument Mode = iota
	// ModeInline resolves explicit placeholders in place and never
	// moves assets elsewhere, for fragment responses processed by an
	// outer layer.
	ModeInline
)

// Entry is one aggregated dependency. Exactly one of Path, Inline and
// Markup is set: a file reference, inline source text, or a
// pre-rendered tag emitted verbatim.
type Entry struct {
	Kind   Kind
	Media  string
	Path   string
	Inline string
	Markup string
}

// Key is the dedup identity of the underlying media content. Two
// components referencing the same path or the same inline text share
// one key regardless of which component registered it first.
func (e Entry) Key() string {
	switch {
	case e.Markup != "":
		return string(e.Kind) + "|markup|" + contentHash(e.Markup)
	case e.Inline != "":
		return string(e.Kind) + "|inline|" + contentHash(e.Inline)
	default:
		return string(e.Kind) + "|" + e.Path
	}
}

// Tag renders the entry as HTML.
func (e Entry) Tag() string {
	if e.Markup != "" {
		return e.Markup
	}
	switch e.Kind {
	case KindCSS:
		if e.Inline != "" {
			return "<style>" + e.Inline + "</style>"
		}
		if e.Media != "" {
			return fmt.Sprintf(`<link href="%s" media="%s" rel="stylesheet">`,
				html.EscapeString(e.Path), html.EscapeString(e.Media))
		}
		return fmt.Sprintf(`<link href="%s" rel="stylesheet">`, html.EscapeString(e.Path))
	case KindJS:
		if e.Inline != "" {
			return "<script>" + e.Inline + "</script>"
		}
		return fmt.Sprintf(`<script src="%s"></script>`, html.EscapeString(e.Path))
	}
	return ""
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// Init pairs one rendered component instance with the client loader:
// the instance's registered name, render-scoped id, input fingerprint
// and JSON-serialized inputs.
type Init struct {
	Name     string
	ID       string
	Hash     string
	DataJSON string
}

// Aggregator is the render-pass-scoped dependency set. Entries keep
// first-seen order; repeats of the same underlying content are
// dropped. Never shared across concurrent render passes.
type Aggregator struct {
	seen  map[string]struct{}
	css   []Entry
	js    []Entry
	inits []Init
}

func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[string]struct{})}
}

// Add registers an entry, reporting whether it was new.
func (a *Aggregator) Add(e Entry) bool {
	key := e.Key()
	if _, ok := a.seen[key]; ok {
		return false
	}
	a.seen[key] = struct{}{}
	if e.Kind == KindCSS {
		a.css = append(a.css, e)
	} else {
		a.js = append(a.js, e)
	}
	return true
}

// AddInit records a component instance for client-side invocation.
func (a *Aggregator) AddInit(in Init) {
	a.inits = append(a.inits, in)
}

func (a *Aggregator) Empty() bool {
	return len(a.css) == 0 && len(a.js) == 0 && len(a.inits) == 0
}

// CSSBlock renders the aggregated stylesheet tags in first-seen order.
func (a *Aggregator) CSSBlock() string {
	var b strings.Builder
	for _, e := range a.css {
		b.WriteString(e.Tag())
	}
	return b.String()
}

// JSBlock renders the loader script, the aggregated script tags and
// the per-instance init calls. The loader comes first so component
// scripts can register against it, and init calls come last so those
// registrations exist before they run.
func (a *Aggregator) JSBlock() string {
	if a.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("<script>")
	b.WriteString(loaderJS)
	b.WriteString("</script>")
	for _, e := range a.js {
		b.WriteString(e.Tag())
	}
	b.WriteString(a.initScript())
	return b.String()
}

func (a *Aggregator) initScript() string {
	if len(a.inits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<script>(function(){var m=window.Ombra.manager;`)
	// Every callComponent below requires a registered (name, hash)
	// pair, so data-less instances get an empty factory.
	seenData := make(map[string]struct{})
	for _, in := range a.inits {
		dk := in.Name + ":" + in.Hash
		if _, ok := seenData[dk]; ok {
			continue
		}
		seenData[dk] = struct{}{}
		data := in.DataJSON
		if data == "" {
			data = "{}"
		}
		fmt.Fprintf(&b, `m.registerComponentData(%q,%q,function(){return %s;});`,
			in.Name, in.Hash, data)
	}
	for _, in := range a.inits {
		fmt.Fprintf(&b, `m.callComponent(%q,%q,%q);`, in.Name, in.ID, in.Hash)
	}
	b.WriteString(`})();</script>`)
	return b.String()
}

// InputHash fingerprints a component's resolved inputs so the client
// loader can pair server-rendered markup with registered initial data.
// Map keys are encoded sorted, keeping the hash stable across runs.
func InputHash(args map[string]any) (string, error) {
	keys := slices.Sorted(maps.Keys(args))
	flat := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		flat = append(flat, k, args[k])
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(flat); err != nil {
		return "", fmt.Errorf("fingerprint component inputs: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])[:12], nil
}

// Postprocess rewrites a rendered page with the aggregated assets.
// Every placeholder occurrence is consumed: the chosen destination
// gets the real content once, all other occurrences are deleted.
func Postprocess(page string, a *Aggregator, mode Mode) string {
	cssBlock := a.CSSBlock()
	jsBlock := a.JSBlock()

	switch mode {
	case ModeInline:
		page = replaceFirstThenDelete(page, CSSPlaceholder, cssBlock)
		page = replaceFirstThenDelete(page, JSPlaceholder, jsBlock)
	default:
		if off, ok := closingTagOffset(page, "head"); ok {
			page = page[:off] + cssBlock + page[off:]
			page = strings.ReplaceAll(page, CSSPlaceholder, "")
		} else {
			page = replaceFirstThenDelete(page, CSSPlaceholder, cssBlock)
		}
		if off, ok := closingTagOffset(page, "body"); ok {
			page = page[:off] + jsBlock + page[off:]
			page = strings.ReplaceAll(page, JSPlaceholder, "")
		} else {
			page = replaceFirstThenDelete(page, JSPlaceholder, jsBlock)
		}
	}
	return page
}

func replaceFirstThenDelete(s, marker, content string) string {
	i := strings.Index(s, marker)
	if i < 0 {
		return s
	}
	s = s[:i] + content + s[i+len(marker):]
	return strings.ReplaceAll(s, marker, "")
}

// closingTagOffset finds the byte offset of the first real </name> end
// tag. Tokenizing instead of substring matching keeps lookalikes
// inside script bodies and comments from being picked as insertion
// points.
func closingTagOffset(page, name string) (int, bool) {
	z := xhtml.NewTokenizer(strings.NewReader(page))
	off := 0
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			return 0, false
		}
		raw := z.Raw()
		if tt == xhtml.EndTagToken {
			if n, _ := z.TagName(); string(n) == name {
				return off, true
			}
		}
		off += len(raw)
	}
}
