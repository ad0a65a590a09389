package postgres

import (
	"context"
	"fmt"
	"sync"

	kpool "github.com/opst/ripen/pkg/conn/db/postgres/pool"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/domain/lock"
	xe "github.com/opst/ripen/pkg/errors"
)

type advisoryLock struct {
	pool kpool.Pool
}

var _ lock.Interface = &advisoryLock{}

// New lock backed by session-level advisory locks.
//
// Each held lock occupies a connection of the pool until it is released.
func New(pool kpool.Pool) lock.Interface {
	return &advisoryLock{pool: pool}
}

func (l *advisoryLock) Acquire(ctx context.Context, name string) (lock.Release, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	var locked bool
	if err := conn.QueryRow(
		ctx,
		`select pg_try_advisory_lock(hashtextextended('ripen/lock/' || $1::text, 0))`,
		name,
	).Scan(&locked); err != nil {
		conn.Release()
		return nil, xe.Wrap(err)
	}
	if !locked {
		conn.Release()
		return nil, fmt.Errorf("%w: %s", domain.ErrLocked, name)
	}

	once := sync.Once{}
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			defer conn.Release()
			var unlocked bool
			if e := conn.QueryRow(
				ctx,
				`select pg_advisory_unlock(hashtextextended('ripen/lock/' || $1::text, 0))`,
				name,
			).Scan(&unlocked); e != nil {
				err = xe.Wrap(e)
				return
			}
			if !unlocked {
				err = xe.Wrap(fmt.Errorf("lock %s is not held", name))
			}
		})
		return err
	}, nil
}
