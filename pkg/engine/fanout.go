package engine

import (
	"context"
	"sync"

	"github.com/batchkit/batchkit/pkg/common"
)

// FanOut adapts a per-request Forwarder into a batch Handler. Each payload
// is forwarded individually and concurrently; the outcomes are reassembled
// in batch order. A forwarder failure only rejects its own request, so a
// fanned-out handler never reports a whole-batch error.
//
// This is the chain-style deployment mode: the engine still owns queueing,
// triggering and completion delivery, while the collaborator opts out of
// true batching.
func FanOut[Req, Res any](fwd common.Forwarder[Req, Res]) common.Handler[Req, Res] {
	return func(ctx context.Context, reqs []Req) ([]common.Result[Res], error) {
		results := make([]common.Result[Res], len(reqs))

		var wg sync.WaitGroup
		wg.Add(len(reqs))
		for i, req := range reqs {
			go func(i int, req Req) {
				defer wg.Done()
				results[i] = common.NewResult(fwd(ctx, req))
			}(i, req)
		}
		wg.Wait()

		return results, nil
	}
}
