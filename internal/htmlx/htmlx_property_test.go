//go:build property
// +build property

package htmlx

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestAnnotateBoundaryProperties checks the subtree ownership rules of
// the splicers against generated fragments of varying shape.
func TestAnnotateBoundaryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// Property: elements under a subtree owned by another component are
	// never annotated, every element outside it is annotated exactly
	// once, and stripping the injected attribute restores the input.
	properties.Property("annotation stops at owned subtrees", prop.ForAll(
		func(outer, inner int, text string) bool {
			var b strings.Builder
			b.WriteString("<div>")
			for i := 0; i < outer; i++ {
				b.WriteString("<p>" + text + "</p>")
			}
			b.WriteString(`<section data-own-c9>`)
			for i := 0; i < inner; i++ {
				b.WriteString("<span>" + text + "</span>")
			}
			b.WriteString("</section></div>")
			frag := b.String()

			out := Annotate(frag, "data-s", "v", AnnotateOptions{
				SkipAttrPrefixes: []string{"data-own-"},
			})
			if strings.Count(out, ` data-s="v"`) != outer+1 {
				return false
			}
			sec := out[strings.Index(out, "<section"):]
			sec = sec[:strings.Index(sec, "</section>")]
			if strings.Contains(sec, "data-s") {
				return false
			}
			return strings.ReplaceAll(out, ` data-s="v"`, "") == frag
		},
		gen.IntRange(0, 6),
		gen.IntRange(0, 6),
		gen.RegexMatch(`^[a-z ]{0,8}$`),
	))

	// Property: root markers land on each top-level element exactly once
	// and never on nested elements, whatever the nesting depth.
	properties.Property("markers land on roots only", prop.ForAll(
		func(roots, depth int) bool {
			var b strings.Builder
			for i := 0; i < roots; i++ {
				for d := 0; d < depth; d++ {
					b.WriteString("<div>")
				}
				b.WriteString("x")
				for d := 0; d < depth; d++ {
					b.WriteString("</div>")
				}
			}
			frag := b.String()
			out := MarkRoots(frag, "data-m-c1")
			if strings.Count(out, " data-m-c1") != roots {
				return false
			}
			return strings.ReplaceAll(out, " data-m-c1", "") == frag
		},
		gen.IntRange(0, 5),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}
