package loop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opst/ripen/pkg/loop"
)

func TestStart(t *testing.T) {
	t.Run("it repeats the task until it breaks", func(t *testing.T) {
		ctx := context.Background()

		actual, err := loop.Start(
			ctx, 1, func(_ context.Context, v int) (int, loop.Next) {
				v += 1
				if 10 <= v {
					return v, loop.Break(nil)
				}
				return v, loop.Continue(0)
			},
		)
		if err != nil {
			t.Fatal(err)
		}
		if actual != 10 {
			t.Errorf("unexpected value: %d", actual)
		}
	})

	t.Run("it returns error passed to Break with the last value", func(t *testing.T) {
		expectedErr := errors.New("fake error")

		actual, err := loop.Start(
			context.Background(), 0, func(_ context.Context, v int) (int, loop.Next) {
				return v + 1, loop.Break(expectedErr)
			},
		)
		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
		if actual != 1 {
			t.Errorf("unexpected value: %d", actual)
		}
	})

	t.Run("it stops when context is done", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		count, err := loop.Start(
			ctx, 0, func(_ context.Context, v int) (int, loop.Next) {
				return v + 1, loop.Continue(10 * time.Millisecond)
			},
		)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("unexpected error: %v", err)
		}
		if count < 1 {
			t.Errorf("task is not called")
		}
	})

	t.Run("it does not call task when context is done already", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		_, err := loop.Start(
			ctx, 0, func(_ context.Context, v int) (int, loop.Next) {
				called = true
				return v, loop.Break(nil)
			},
		)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
		if called {
			t.Error("task is called")
		}
	})

	t.Run("it passes deadlined context when WithTimeout is passed", func(t *testing.T) {
		timeout := 100 * time.Millisecond

		_, err := loop.Start(
			context.Background(), 0,
			func(ctx context.Context, v int) (int, loop.Next) {
				dl, ok := ctx.Deadline()
				if !ok {
					t.Error("context does not have deadline")
				} else if time.Until(dl) > timeout {
					t.Errorf("deadline is too far: %s", dl)
				}
				if 3 <= v {
					return v, loop.Break(nil)
				}
				return v + 1, loop.Continue(0)
			},
			loop.WithTimeout(timeout),
		)
		if err != nil {
			t.Fatal(err)
		}
	})
}
