package common

// Result is the tagged outcome of a single batched request: either a value
// or an error, never both. Batch handlers produce one Result per request
// and the engine delivers each Result to the completion handle of the
// request it belongs to.
type Result[R any] struct {
	v   R
	err error
}

// Ok returns a successful Result carrying v.
func Ok[R any](v R) Result[R] {
	return Result[R]{v: v}
}

// Err returns a failed Result carrying err.
func Err[R any](err error) Result[R] {
	return Result[R]{err: err}
}

// NewResult builds a Result from a (value, error) pair. A non-nil error
// wins: the value is retained but Err() reports the failure.
func NewResult[R any](v R, err error) Result[R] {
	return Result[R]{
		v:   v,
		err: err,
	}
}

func (r Result[R]) Value() R {
	return r.v
}

func (r Result[R]) Err() error {
	return r.err
}
