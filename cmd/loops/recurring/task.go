package recurring

import (
	"context"

	"github.com/opst/ripen/pkg/loop"
)

// Task is a body of a recurring loop.
//
// # Returns
//
// - T : same as T of loop.Task[T]
//
// - bool : true when this task did something in this cycle, and more backlog can be.
// otherwise false.
//
// - error : passed to the Policy
type Task[T any] func(context.Context, T) (T, bool, error)

// Applied makes loop.Task which runs rt and decides what to do next by p.
func (rt Task[T]) Applied(p Policy) loop.Task[T] {
	return func(ctx context.Context, t T) (T, loop.Next) {
		new, ok, err := rt(ctx, t)
		return new, p.Next(ok, err)
	}
}
