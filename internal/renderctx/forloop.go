package renderctx

// LoopVar is the context key under which loop state is published.
const LoopVar = "forloop"

// ForLoop is the mutable loop-state mapping a running for tag exposes as
// "forloop". The owning tag mutates it in place on every iteration, so
// snapshots must copy it (and its parent chain) rather than share it.
//
// Keys: counter (1-based), counter0, first, last, parentloop.
type ForLoop map[string]any

// NewForLoop returns loop state positioned before the first iteration,
// linked to the enclosing loop when there is one.
func NewForLoop(parent ForLoop) ForLoop {
	f := ForLoop{
		"counter":  0,
		"counter0": -1,
		"first":    false,
		"last":     false,
	}
	if parent != nil {
		f["parentloop"] = parent
	}
	return f
}

// Advance moves the loop state to iteration i of n (0-based).
func (f ForLoop) Advance(i, n int) {
	f["counter"] = i + 1
	f["counter0"] = i
	f["first"] = i == 0
	f["last"] = i == n-1
}

// SnapshotValue copies the loop state, recursing through the parent chain
// so a snapshot observes the exact nested state at capture time.
func (f ForLoop) SnapshotValue() any {
	c := make(ForLoop, len(f))
	for k, v := range f {
		if p, ok := v.(ForLoop); ok {
			c[k] = p.SnapshotValue()
		} else {
			c[k] = v
		}
	}
	return c
}
