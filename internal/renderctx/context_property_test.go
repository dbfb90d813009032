//go:build property
// +build property

package renderctx

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// applyOp mutates the context with one encoded operation: 0 push, 1 pop,
// 2 set, 3 advance loop state if present.
func applyOp(c *Context, op, n int) {
	switch op % 4 {
	case 0:
		c.Push(map[string]any{fmt.Sprintf("k%d", n%5): n})
	case 1:
		c.Pop()
	case 2:
		c.Set(fmt.Sprintf("k%d", n%5), n)
	case 3:
		if v, ok := c.Get(LoopVar); ok {
			v.(ForLoop).Advance(n%7, 7)
		}
	}
}

// materialize rebuilds nested maps so the frozen expectation cannot share
// storage with the snapshot it is compared against later.
func materialize(v any) any {
	switch m := v.(type) {
	case ForLoop:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = materialize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = materialize(val)
		}
		return out
	default:
		return v
	}
}

// TestSnapshotUnaffectedByLaterMutation drives a random operation sequence,
// snapshots, keeps mutating, and checks the snapshot's visible mapping
// never moves.
func TestSnapshotUnaffectedByLaterMutation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("snapshot is frozen against the live stack", prop.ForAll(
		func(before, after []int) bool {
			loop := NewForLoop(nil)
			loop.Advance(0, 7)
			c := FromMap(map[string]any{"base": "v", LoopVar: loop}, nil)
			for i, op := range before {
				applyOp(c, op, i)
			}

			snap := c.Snapshot()
			frozen := materialize(snap.Flatten())

			for i, op := range after {
				applyOp(c, op, i+1000)
			}

			return reflect.DeepEqual(frozen, materialize(snap.Flatten()))
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
