package renderctx

import "context"

// Snapshotter marks a context value as mutable-in-place so Snapshot knows
// to copy it one level deep. Loop state and block-override state implement
// it; everything else is shared structurally between a context and its
// snapshots.
type Snapshotter interface {
	SnapshotValue() any
}

// Context is an ordered stack of key-value layers plus a render-state side
// channel used by host-engine features (inheritance blocks). Pushing a
// layer never mutates the layers below it; popping restores the exact
// prior visible mapping.
//
// Pass carries the render-pass object owned by the engine. It is opaque at
// this level and shared, never copied, by Snapshot: pass-scoped state (id
// counters, dependency sets, provide stack) must survive across captured
// fragments within one root render.
//
// Ctx is the cancellation context of the render pass, shared the same way.
// Nodes that load templates mid-render (extends) pass it to the resolver;
// a nil Ctx means no caller-imposed deadline.
type Context struct {
	layers []map[string]any
	state  []map[string]any
	Pass   any
	Ctx    context.Context
}

// New returns a context with a single empty base layer.
func New(pass any) *Context {
	return &Context{
		layers: []map[string]any{{}},
		state:  []map[string]any{{}},
		Pass:   pass,
	}
}

// FromMap returns a context whose base layer is data. The map is used
// directly, not copied.
func FromMap(data map[string]any, pass any) *Context {
	if data == nil {
		data = map[string]any{}
	}
	return &Context{
		layers: []map[string]any{data},
		state:  []map[string]any{{}},
		Pass:   pass,
	}
}

// Push adds a layer on top of the stack. A nil layer pushes a fresh empty
// map. The map is owned by the context until the matching Pop.
func (c *Context) Push(layer map[string]any) {
	if layer == nil {
		layer = map[string]any{}
	}
	c.layers = append(c.layers, layer)
}

// Pop removes the top layer. The base layer is never popped.
func (c *Context) Pop() {
	if len(c.layers) > 1 {
		c.layers = c.layers[:len(c.layers)-1]
	}
}

// Depth reports the number of layers.
func (c *Context) Depth() int {
	return len(c.layers)
}

// Set writes a key into the top layer.
func (c *Context) Set(key string, value any) {
	c.layers[len(c.layers)-1][key] = value
}

// Get looks a key up from the top layer down.
func (c *Context) Get(key string) (any, bool) {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if v, ok := c.layers[i][key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether a key is visible anywhere in the stack.
func (c *Context) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Flatten merges all layers bottom to top into one map, higher layers
// shadowing lower ones. The result is a fresh map safe for the caller to
// hold; values are shared.
func (c *Context) Flatten() map[string]any {
	n := 0
	for _, l := range c.layers {
		n += len(l)
	}
	flat := make(map[string]any, n)
	for _, l := range c.layers {
		for k, v := range l {
			flat[k] = v
		}
	}
	return flat
}

// StatePush adds a layer to the render-state stack.
func (c *Context) StatePush(layer map[string]any) {
	if layer == nil {
		layer = map[string]any{}
	}
	c.state = append(c.state, layer)
}

// StatePop removes the top render-state layer, keeping the base.
func (c *Context) StatePop() {
	if len(c.state) > 1 {
		c.state = c.state[:len(c.state)-1]
	}
}

// State looks a render-state key up from the top down.
func (c *Context) State(key string) (any, bool) {
	for i := len(c.state) - 1; i >= 0; i-- {
		if v, ok := c.state[i][key]; ok {
			return v, true
		}
	}
	return nil, false
}

// SetState writes a render-state key into the top state layer.
func (c *Context) SetState(key string, value any) {
	c.state[len(c.state)-1][key] = value
}

// Snapshot produces a structurally independent copy of the context for
// fragments captured as closures and rendered later. Layer maps are
// copied so later Push/Pop/Set on either side stays invisible to the
// other; values are shared, except Snapshotter values (loop state, block
// state), which are asked for a one-level-deep copy reflecting their
// exact state at this moment.
func (c *Context) Snapshot() *Context {
	return &Context{
		layers: snapshotLayers(c.layers),
		state:  snapshotLayers(c.state),
		Pass:   c.Pass,
		Ctx:    c.Ctx,
	}
}

func snapshotLayers(layers []map[string]any) []map[string]any {
	out := make([]map[string]any, len(layers))
	for i, l := range layers {
		nl := make(map[string]any, len(l))
		for k, v := range l {
			if s, ok := v.(Snapshotter); ok {
				nl[k] = s.SnapshotValue()
			} else {
				nl[k] = v
			}
		}
		out[i] = nl
	}
	return out
}
