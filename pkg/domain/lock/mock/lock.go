package mock

import (
	"context"
	"errors"
	"fmt"

	"github.com/opst/ripen/pkg/domain"
	mocks "github.com/opst/ripen/pkg/domain/internal/db/mock"
	"github.com/opst/ripen/pkg/domain/lock"
)

type LockInterface struct {
	Impl struct {
		Acquire func(ctx context.Context, name string) (lock.Release, error)
	}
	Calls struct {
		Acquire mocks.CallLog[string]
	}
}

var _ lock.Interface = &LockInterface{}

func NewLockInterface() *LockInterface {
	return &LockInterface{}
}

func (m *LockInterface) Acquire(ctx context.Context, name string) (lock.Release, error) {
	m.Calls.Acquire = append(m.Calls.Acquire, name)
	if m.Impl.Acquire != nil {
		return m.Impl.Acquire(ctx, name)
	}
	panic(errors.New("it should not be called"))
}

// InMemory implements Acquire with an in-process lock table.
func (m *LockInterface) InMemory() *LockInterface {
	held := map[string]bool{}
	m.Impl.Acquire = func(_ context.Context, name string) (lock.Release, error) {
		if held[name] {
			return nil, errLocked(name)
		}
		held[name] = true
		return func(context.Context) error {
			delete(held, name)
			return nil
		}, nil
	}
	return m
}

func errLocked(name string) error {
	return fmt.Errorf("%w: %s", domain.ErrLocked, name)
}
