package ombra

import (
	"context"
	"strconv"

	"github.com/ombra-web/ombra/internal/deps"
	"github.com/ombra-web/ombra/internal/renderctx"
)

// Pass carries all render-scoped state of one root render: the sequential
// component-id counter, the dependency aggregator, the provide stack and
// the component frame stack. A fresh Pass is created per root render and
// threaded through the render context; concurrent root renders therefore
// share nothing at this level.
type Pass struct {
	engine   *Engine
	ctx      context.Context
	deps     *deps.Aggregator
	rootData map[string]any

	ids     int
	provide []provideEntry
	frames  []*frame
}

type provideEntry struct {
	name  string
	value map[string]any
}

// frame is the per-component-instance state while its template renders.
type frame struct {
	component *Component
	id        string
	slots     *slotState
	// currentSlot names the slot being rendered, for breadcrumbs.
	currentSlot string
	// scoping is set when this instance annotates its subtree; sentinels
	// additionally excludes fill content from the annotation.
	scoping   bool
	sentinels bool
}

func newPass(e *Engine, rootData map[string]any, ctx context.Context) *Pass {
	if rootData == nil {
		rootData = map[string]any{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Pass{
		engine:   e,
		ctx:      ctx,
		deps:     deps.NewAggregator(),
		rootData: rootData,
	}
}

// nextID returns the next render-scoped component id, "c1", "c2", ...
func (p *Pass) nextID() string {
	p.ids++
	return "c" + strconv.Itoa(p.ids)
}

func (p *Pass) pushFrame(fr *frame) {
	p.frames = append(p.frames, fr)
}

func (p *Pass) popFrame() {
	p.frames = p.frames[:len(p.frames)-1]
}

func (p *Pass) currentFrame() *frame {
	if len(p.frames) == 0 {
		return nil
	}
	return p.frames[len(p.frames)-1]
}

// passOf recovers the render pass threaded through a context. Every
// context the engine creates carries one.
func passOf(ctx *renderctx.Context) *Pass {
	p, _ := ctx.Pass.(*Pass)
	return p
}
