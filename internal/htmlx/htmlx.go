package htmlx

import (
	"fmt"
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
)

// voidElements never take end tags and never contribute to depth.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// MarkRoots splices a valueless attribute into every top-level element of
// the fragment. Everything else passes through byte for byte, so the
// fragment is never re-serialized or normalized.
func MarkRoots(fragment, attr string) string {
	var out strings.Builder
	out.Grow(len(fragment) + len(attr) + 8)
	z := xhtml.NewTokenizer(strings.NewReader(fragment))
	depth := 0
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			break
		}
		raw := string(z.Raw())
		switch tt {
		case xhtml.StartTagToken:
			name, _ := z.TagName()
			if depth == 0 {
				raw = injectAttr(raw, attr, "", false)
			}
			if !voidElements[string(name)] {
				depth++
			}
		case xhtml.SelfClosingTagToken:
			if depth == 0 {
				raw = injectAttr(raw, attr, "", false)
			}
		case xhtml.EndTagToken:
			if depth > 0 {
				depth--
			}
		}
		out.WriteString(raw)
	}
	return out.String()
}

// AnnotateOptions controls which parts of a fragment Annotate leaves
// untouched.
type AnnotateOptions struct {
	// SkipAttrPrefixes: an element carrying an attribute with one of these
	// prefixes roots a foreign subtree that is passed through unchanged.
	SkipAttrPrefixes []string
	// RegionStart and RegionEnd are comment payloads delimiting excluded
	// regions. The delimiting comments themselves are stripped from the
	// output, everywhere.
	RegionStart string
	RegionEnd   string
}

// Annotate splices attr="value" into every element of the fragment except
// elements inside skipped subtrees and excluded regions.
func Annotate(fragment, attr, value string, opt AnnotateOptions) string {
	var out strings.Builder
	out.Grow(len(fragment) + 64)
	z := xhtml.NewTokenizer(strings.NewReader(fragment))
	depth := 0
	skipUntil := -1 // depth at which the current skipped subtree closes
	regions := 0
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			break
		}
		raw := string(z.Raw())
		switch tt {
		case xhtml.CommentToken:
			if opt.RegionStart != "" {
				switch strings.TrimSpace(z.Token().Data) {
				case opt.RegionStart:
					regions++
					continue
				case opt.RegionEnd:
					if regions > 0 {
						regions--
					}
					continue
				}
			}
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			tok := z.Token()
			void := tt == xhtml.SelfClosingTagToken || voidElements[tok.Data]
			skipped := skipUntil >= 0 || regions > 0
			if !skipped && hasAttrPrefix(tok, opt.SkipAttrPrefixes) {
				skipped = true
				if skipUntil < 0 && !void {
					skipUntil = depth
				}
			}
			if !skipped {
				raw = injectAttr(raw, attr, value, true)
			}
			if !void {
				depth++
			}
		case xhtml.EndTagToken:
			if depth > 0 {
				depth--
			}
			if skipUntil >= 0 && depth == skipUntil {
				skipUntil = -1
			}
		}
		out.WriteString(raw)
	}
	return out.String()
}

func hasAttrPrefix(tok xhtml.Token, prefixes []string) bool {
	for _, a := range tok.Attr {
		for _, p := range prefixes {
			if strings.HasPrefix(a.Key, p) {
				return true
			}
		}
	}
	return false
}

// injectAttr splices an attribute into a raw start tag just before its
// closing bracket, keeping the original bytes otherwise.
func injectAttr(raw, attr, value string, valued bool) string {
	end := strings.LastIndexByte(raw, '>')
	if end <= 0 {
		return raw
	}
	cut := end
	if raw[cut-1] == '/' {
		cut--
	}
	insert := " " + attr
	if valued {
		insert = fmt.Sprintf(" %s=%q", attr, html.EscapeString(value))
	}
	return raw[:cut] + insert + raw[cut:]
}
