// Package stage holds the Result type that each pipeline stage returns, so a
// failure is turned into a fallback value in one visible place instead of
// being thrown past the caller.
package stage

// Result is either a value or an error. A value produced by a fallback is
// marked Degraded and keeps the error that caused it.
type Result[T any] struct {
	Value    T
	Err      error
	Degraded bool
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps an error.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Try runs fn and wraps its outcome.
func Try[T any](fn func() (T, error)) Result[T] {
	v, err := fn()
	if err != nil {
		return Fail[T](err)
	}
	return OK(v)
}

// Failed reports whether r carries an error that was not yet recovered.
func (r Result[T]) Failed() bool {
	return r.Err != nil && !r.Degraded
}

// OrElse recovers a failed result with fallback. Successful and already
// recovered results pass through untouched.
func (r Result[T]) OrElse(fallback func(error) T) Result[T] {
	if !r.Failed() {
		return r
	}
	return Result[T]{Value: fallback(r.Err), Err: r.Err, Degraded: true}
}

// Must returns the value, whether original or recovered.
func (r Result[T]) Must() T {
	return r.Value
}
