package common

import (
	"context"
	"errors"

	"github.com/opst/ripen/cmd/ripen/rest"
	"github.com/opst/ripen/pkg/logging"
	"github.com/youta-t/flarc"
	"go.uber.org/zap"
)

// TaskWithCommonFlag is a task of a subcommand, which needs CommonFlags but not a client.
type TaskWithCommonFlag[T any] func(
	ctx context.Context,
	logger *zap.Logger,
	commonFlag CommonFlags,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTaskWithCommonFlag[T any](task TaskWithCommonFlag[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}

		logger, err := logging.NewWithWriter(commonFlag.LogLevel, cl.Stderr())
		if err != nil {
			return errors.Join(flarc.ErrUsage, err)
		}
		defer logger.Sync()

		return task(ctx, logger.Named(cl.Fullname()), commonFlag, cl, newpos)
	}
}

// Task is a task of a subcommand talking to ripend.
type Task[T any] func(
	ctx context.Context,
	logger *zap.Logger,
	client rest.RipenClient,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTask[T any](task Task[T]) flarc.Task[T] {
	return NewTaskWithCommonFlag(func(
		ctx context.Context,
		logger *zap.Logger,
		commonFlag CommonFlags,
		cl flarc.Commandline[T],
		params []any,
	) error {
		client, err := rest.NewClient(commonFlag.Server, rest.WithToken(commonFlag.Token))
		if err != nil {
			return errors.Join(flarc.ErrUsage, err)
		}
		return task(ctx, logger, client, cl, params)
	})
}
