package engine

import (
	"sync/atomic"

	"github.com/batchkit/batchkit/pkg/common"
)

// completion is the one-shot handle through which a request's eventual
// result or error reaches its caller. The channel is buffered so delivery
// never blocks on a caller that has abandoned interest, and the resolved
// flag guards against double delivery.
type completion[Res any] struct {
	ch       chan common.Result[Res]
	resolved atomic.Bool
}

func newCompletion[Res any]() *completion[Res] {
	return &completion[Res]{ch: make(chan common.Result[Res], 1)}
}

// resolve delivers r and closes the channel. It reports whether this call
// performed the delivery; a second attempt is a no-op returning false.
func (c *completion[Res]) resolve(r common.Result[Res]) bool {
	if !c.resolved.CompareAndSwap(false, true) {
		return false
	}
	c.ch <- r
	close(c.ch)
	return true
}
