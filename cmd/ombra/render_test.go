package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ombra-web/ombra"
)

func resetRenderFlags() {
	renderData = ""
	renderOutput = ""
	renderSet = nil
	renderManifests = nil
}

func TestRenderCommand(t *testing.T) {
	viper.Reset()
	resetRenderFlags()

	dir := t.TempDir()
	page := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(page, []byte(
		`<html><head></head><body>{% component "card" title=title %}{% endcomponent %}</body></html>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card.css"),
		[]byte(".card { color: red; }\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "components.yml"), []byte(`
components:
  - name: card
    template: '<div class="card">{{ title }}</div>'
    params:
      - title
    css_file: card.css
    scope_css: true
`), 0o644))

	renderManifests = []string{filepath.Join(dir, "components.yml")}
	renderSet = setFlags{"title": "Hello"}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, runRender(cmd, []string{page}))

	html := out.String()
	assert.Contains(t, html, "Hello")
	assert.Contains(t, html, "data-ombra-id-c1")
	assert.Contains(t, html, `.card[data-ombra-scope=`)
	assert.Contains(t, html, "<style>")
}

func TestRenderCommandDataAndOutput(t *testing.T) {
	viper.Reset()
	resetRenderFlags()

	dir := t.TempDir()
	tpl := filepath.Join(dir, "greet.html")
	require.NoError(t, os.WriteFile(tpl, []byte(`<p>{{ greeting }}, {{ name }}!</p>`), 0o644))
	dataFile := filepath.Join(dir, "data.yml")
	require.NoError(t, os.WriteFile(dataFile, []byte("greeting: Hello\nname: World\n"), 0o644))

	outFile := filepath.Join(dir, "out.html")
	renderData = dataFile
	renderOutput = outFile
	renderSet = setFlags{"name": "Ombra"}

	require.NoError(t, runRender(&cobra.Command{}, []string{tpl}))

	got, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello, Ombra!</p>", string(got))
}

func TestRenderCommandSearchDirs(t *testing.T) {
	viper.Reset()
	resetRenderFlags()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte(`<b>{{ x }}</b>`), 0o644))
	viper.Set("templates.dirs", []string{dir})

	renderSet = setFlags{"x": "1"}
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, runRender(cmd, []string{"page.html"}))
	assert.Equal(t, "<b>1</b>", out.String())
}

func TestRenderCommandMissingTemplate(t *testing.T) {
	viper.Reset()
	resetRenderFlags()
	viper.Set("templates.dirs", []string{t.TempDir()})

	err := runRender(&cobra.Command{}, []string{"ghost.html"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost.html")
}

func TestWatchAndRender(t *testing.T) {
	viper.Reset()
	resetRenderFlags()

	dir := t.TempDir()
	tpl := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(tpl, []byte(`<b>one</b>`), 0o644))
	out := filepath.Join(dir, "out.html")

	e, err := ombra.New(ombra.WithTemplateDirs(dir))
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	renderOnce := func() error {
		page, err := e.RenderTemplate(ctx, "page.html", nil)
		if err != nil {
			return err
		}
		return os.WriteFile(out, []byte(page), 0o644)
	}

	cmd := &cobra.Command{}
	cmd.SetErr(io.Discard)
	done := make(chan error, 1)
	go func() { done <- watchAndRender(ctx, cmd, e, renderOnce) }()

	require.Eventually(t, func() bool {
		raw, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(raw), "one")
	}, 5*time.Second, 25*time.Millisecond)

	require.NoError(t, os.WriteFile(tpl, []byte(`<b>two</b>`), 0o644))
	require.Eventually(t, func() bool {
		raw, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(raw), "two")
	}, 5*time.Second, 25*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSetFlags(t *testing.T) {
	var s setFlags
	require.NoError(t, s.Set("a=1"))
	require.NoError(t, s.Set("b=two=three"))
	assert.Equal(t, setFlags{"a": "1", "b": "two=three"}, s)
	assert.Error(t, s.Set("novalue"))
	assert.Error(t, s.Set("=v"))
	assert.Equal(t, "a=1,b=two=three", s.String())
}
