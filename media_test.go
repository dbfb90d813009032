package ombra

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ombra-web/ombra/internal/deps"
)

type stringerPath struct{ s string }

func (p stringerPath) String() string { return p.s }

func TestCoerceMediaPath(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    MediaPath
		wantErr bool
	}{
		{
			name: "plain string is a path",
			in:   "css/app.css",
			want: LiteralPath("css/app.css"),
		},
		{
			name: "byte slice is a path",
			in:   []byte("css/app.css"),
			want: LiteralPath("css/app.css"),
		},
		{
			name: "stringer is a path",
			in:   stringerPath{"css/app.css"},
			want: LiteralPath("css/app.css"),
		},
		{
			name: "safe string is pre-rendered markup",
			in:   SafeString(`<link href="x.css" rel="stylesheet">`),
			want: PreRenderedMarkup(`<link href="x.css" rel="stylesheet">`),
		},
		{
			name: "media path passes through",
			in:   PreRenderedMarkup("<style>.a{}</style>"),
			want: PreRenderedMarkup("<style>.a{}</style>"),
		},
		{
			name:    "unsupported type errors",
			in:      42,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceMediaPath(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsMediaError(err))
				assert.Contains(t, err.Error(), "42")
				assert.Contains(t, err.Error(), "int")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMedia_RegisterOrderAndGrouping(t *testing.T) {
	m := Media{
		CSS: map[string]any{
			"print": "print.css",
			"all":   []string{"a.css", "b.css"},
		},
		JS: []any{"app.js", SafeString(`<script type="module" src="m.js"></script>`)},
	}

	a := deps.NewAggregator()
	require.NoError(t, m.register(a))

	css := a.CSSBlock()
	assert.Contains(t, css, `href="a.css" media="all"`)
	assert.Contains(t, css, `href="b.css" media="all"`)
	assert.Contains(t, css, `href="print.css" media="print"`)
	// Media groups register in sorted order, paths in declared order.
	assert.Less(t, strings.Index(css, "a.css"), strings.Index(css, "b.css"))
	assert.Less(t, strings.Index(css, "b.css"), strings.Index(css, "print.css"))

	js := a.JSBlock()
	assert.Contains(t, js, `src="app.js"`)
	assert.Contains(t, js, `type="module" src="m.js"`)
}

func TestDeps_EndToEndDocument(t *testing.T) {
	e := newTestEngine(t)
	mustRegister(t, e, &Component{
		Name:     "test1",
		Template: `<span>one</span>`,
		MediaDefs: Media{
			CSS: map[string]any{"all": "style.css"},
			JS:  "script.js",
		},
	})
	mustRegister(t, e, &Component{
		Name:     "test2",
		Template: `<span>two</span>`,
		MediaDefs: Media{
			CSS: map[string]any{"all": "style2.css"},
			JS:  "script2.js",
		},
	})

	page := `<!DOCTYPE html><html><head><title>t</title></head><body>` +
		`{% component "test1" %}{% endcomponent %}` +
		`{% component "test2" %}{% endcomponent %}` +
		`{% component "test1" %}{% endcomponent %}` +
		`</body></html>`

	out, err := e.RenderString(context.Background(), page, nil)
	require.NoError(t, err)

	// Each asset exactly once, despite test1 rendering twice.
	assert.Equal(t, 1, strings.Count(out, `href="style.css"`))
	assert.Equal(t, 1, strings.Count(out, `href="style2.css"`))
	assert.Equal(t, 1, strings.Count(out, `src="script.js"`))
	assert.Equal(t, 1, strings.Count(out, `src="script2.js"`))

	// No placeholders survive post-processing.
	assert.NotContains(t, out, "CSS_PLACEHOLDER")
	assert.NotContains(t, out, "JS_PLACEHOLDER")

	// CSS lands in head, JS before the body closes, first-seen order kept.
	head := strings.Index(out, "</head>")
	body := strings.Index(out, "</body>")
	assert.Less(t, strings.Index(out, `href="style.css"`), head)
	assert.Less(t, strings.Index(out, `href="style2.css"`), head)
	assert.Less(t, strings.Index(out, `href="style.css"`), strings.Index(out, `href="style2.css"`))
	assert.Greater(t, strings.Index(out, `src="script.js"`), head)
	assert.Less(t, strings.Index(out, `src="script.js"`), body)
	assert.Less(t, strings.Index(out, `src="script.js"`), strings.Index(out, `src="script2.js"`))

	// The client loader ships once with any rendered dependency.
	assert.Equal(t, 1, strings.Count(out, "function createOmbraManager"))
}

func TestDeps_SharedAssetAcrossComponents(t *testing.T) {
	e := newTestEngine(t)
	for _, name := range []string{"alpha", "beta"} {
		mustRegister(t, e, &Component{
			Name:      name,
			Template:  `<b>` + name + `</b>`,
			MediaDefs: Media{CSS: map[string]any{"all": "shared.css"}},
		})
	}

	out, err := e.RenderString(context.Background(),
		`<html><head></head><body>{% component "alpha" %}{% endcomponent %}{% component "beta" %}{% endcomponent %}</body></html>`, nil)
	require.NoError(t, err)

	// Dedup is keyed by asset content, not by component.
	assert.Equal(t, 1, strings.Count(out, `href="shared.css"`))
}

func TestDeps_InlineMode(t *testing.T) {
	e := newTestEngine(t, WithDependencyMode(DepsInline))
	mustRegister(t, e, &Component{
		Name:      "frag",
		Template:  `<p>f</p>`,
		MediaDefs: Media{CSS: map[string]any{"all": "frag.css"}, JS: "frag.js"},
	})

	t.Run("placeholders resolve in place", func(t *testing.T) {
		out, err := e.RenderString(context.Background(),
			`{% component_css_dependencies %}{% component "frag" %}{% endcomponent %}{% component_js_dependencies %}`, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(out, `href="frag.css"`))
		assert.Equal(t, 1, strings.Count(out, `src="frag.js"`))
		assert.NotContains(t, out, "PLACEHOLDER")
		// Inline mode keeps assets at the markers, not near head or body.
		assert.True(t, strings.Index(out, `frag.css`) < strings.Index(out, `<p`))
	})

	t.Run("without markers assets are dropped", func(t *testing.T) {
		out, err := e.RenderString(context.Background(),
			`{% component "frag" %}{% endcomponent %}`, nil)
		require.NoError(t, err)
		assert.NotContains(t, out, "frag.css")
		assert.NotContains(t, out, "frag.js")
	})
}

func TestDeps_DocumentFallsBackToPlaceholders(t *testing.T) {
	e := newTestEngine(t)
	mustRegister(t, e, &Component{
		Name:      "frag",
		Template:  `<p>f</p>`,
		MediaDefs: Media{CSS: map[string]any{"all": "frag.css"}},
	})

	// No head or body in the page: the explicit marker is the fallback.
	out, err := e.RenderString(context.Background(),
		`{% component_css_dependencies %}{% component "frag" %}{% endcomponent %}`, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, `href="frag.css"`))
	assert.NotContains(t, out, "PLACEHOLDER")
}

func TestDeps_InlineCSSAndJS(t *testing.T) {
	e := newTestEngine(t)
	mustRegister(t, e, &Component{
		Name:     "styled",
		Template: `<div class="s">x</div>`,
		CSS:      ".s { color: teal; }",
		JS:       `console.log("styled");`,
	})

	out, err := e.RenderString(context.Background(),
		`<html><head></head><body>{% component "styled" %}{% endcomponent %}{% component "styled" %}{% endcomponent %}</body></html>`, nil)
	require.NoError(t, err)

	// Inline declarations dedup by content exactly like paths.
	assert.Equal(t, 1, strings.Count(out, "color: teal"))
	assert.Equal(t, 1, strings.Count(out, `console.log("styled");`))
}

func TestDeps_ClientInits(t *testing.T) {
	e := newTestEngine(t)
	mustRegister(t, e, &Component{
		Name:     "widget",
		Template: `<div>w</div>`,
		JS:       `console.log("w");`,
		ClientData: func(cc *CallContext) (map[string]any, error) {
			return map[string]any{"n": 1}, nil
		},
	})

	out, err := e.RenderString(context.Background(),
		`<html><head></head><body>{% component "widget" %}{% endcomponent %}{% component "widget" %}{% endcomponent %}</body></html>`, nil)
	require.NoError(t, err)

	// One data registration per (name, hash), one call per instance.
	assert.Equal(t, 1, strings.Count(out, `m.registerComponentData("widget"`))
	assert.Equal(t, 2, strings.Count(out, `m.callComponent("widget"`))
	assert.Contains(t, out, `"c1"`)
	assert.Contains(t, out, `"c2"`)
	assert.Contains(t, out, `{"n":1}`)
}

func TestDeps_JSOnlyStillInits(t *testing.T) {
	e := newTestEngine(t)
	mustRegister(t, e, &Component{
		Name:     "beacon",
		Template: `<div>b</div>`,
		JS:       `window.Ombra.manager.registerComponent("beacon", function (el) { el.dataset.live = "1"; });`,
	})

	out, err := e.RenderString(context.Background(),
		`<html><head></head><body>{% component "beacon" %}{% endcomponent %}</body></html>`, nil)
	require.NoError(t, err)

	// Without client data the instance still registers an empty input
	// factory, so the paired call can resolve its hash and run once.
	hash, err := deps.InputHash(map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, `m.registerComponentData("beacon","`+hash+`",function(){return {};});`)
	assert.Equal(t, 1, strings.Count(out, `m.callComponent("beacon","c1","`+hash+`");`))
}

func TestDeps_OptOut(t *testing.T) {
	e := newTestEngine(t)
	mustRegister(t, e, &Component{
		Name:      "silent",
		Template:  `<div>s</div>`,
		CSS:       ".never { }",
		JS:        `console.log("never");`,
		MediaDefs: Media{CSS: map[string]any{"all": "never.css"}},
		NoDeps:    true,
	})

	out, err := e.RenderString(context.Background(),
		`<html><head></head><body>{% component "silent" %}{% endcomponent %}</body></html>`, nil)
	require.NoError(t, err)
	assert.NotContains(t, out, "never")
	assert.NotContains(t, out, "createOmbraManager")
}

func TestDeps_MediaErrorSurfacesWithBreadcrumb(t *testing.T) {
	e := newTestEngine(t)
	mustRegister(t, e, &Component{
		Name:      "broken",
		Template:  `<div>x</div>`,
		MediaDefs: Media{CSS: map[string]any{"all": 3.14}},
		NoMarker:  true,
	})

	_, err := e.Render(context.Background(), "broken", nil)
	require.Error(t, err)
	assert.True(t, IsMediaError(err))
	assert.True(t, IsRenderError(err))
	assert.Contains(t, err.Error(), "broken")
}
