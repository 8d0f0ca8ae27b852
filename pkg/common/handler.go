package common

import "context"

// Handler is the batch-capable collaborator the engine dispatches to.
// It receives the payloads of one batch in enqueue order and produces one
// Result per payload, positionally aligned with the input.
//
// Error semantics:
//   - A non-nil error is a whole-batch failure. The outcome slice is
//     ignored and every member of the batch is rejected with that error.
//   - A per-request failure is expressed as an error Result at that
//     request's index; sibling requests are unaffected.
//   - An outcome slice shorter than the batch is a contract violation.
//     The engine rejects the uncovered tail rather than dropping it.
//
// The engine calls a Handler at most once per batch and never retries.
type Handler[Req, Res any] func(ctx context.Context, reqs []Req) ([]Result[Res], error)

// Forwarder continues processing of a single request on its own,
// bypassing batching. Deployments that sit in a middleware chain hand the
// engine a Forwarder-backed Handler so each payload is forwarded
// individually while callers still get the engine's completion semantics.
type Forwarder[Req, Res any] func(ctx context.Context, req Req) (Res, error)
