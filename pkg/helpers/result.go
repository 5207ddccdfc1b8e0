package helpers

import "context"

// Result carries either a value or an error through a channel. Streams in
// this module are `<-chan Result[T]`: the channel closes on completion, and a
// Result with an error is always the last item sent on failure.
type Result[T any] struct {
	value T
	err   error
}

func NewValueResult[T any](value T) Result[T] {
	return Result[T]{value: value}
}

func NewErrorResult[T any](err error) Result[T] {
	return Result[T]{err: err}
}

func (r Result[T]) Value() (T, error) {
	return r.value, r.err
}

func (r Result[T]) Error() error {
	return r.err
}

func (r Result[T]) Ok() bool {
	return r.err == nil
}

// Send delivers r on c unless ctx is done first. It reports whether the
// result was delivered.
func Send[T any](ctx context.Context, c chan<- Result[T], r Result[T]) bool {
	select {
	case c <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect drains a result stream, returning every value received before the
// channel closed or an error result arrived.
func Collect[T any](c <-chan Result[T]) ([]T, error) {
	var out []T
	for r := range c {
		v, err := r.Value()
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
