package train

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opst/ripen/cmd/ripen/rest"
	"github.com/opst/ripen/cmd/ripen/subcommands/common"
	"github.com/opst/ripen/pkg/utils/rfctime"
	"github.com/youta-t/flarc"
	"go.uber.org/zap"
)

type Flags struct {
	AsOf string `flag:"as-of" help:"train with labels resolved until this (RFC3339). default: now"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Run a training job and wait for it.",
		Flags{},
		flarc.Args{},
		common.NewTask(Task()),
		flarc.WithDescription(`
Run a training job and wait for it.

The trained model becomes active only when it passes the promotion gate.
It needs a token with operator scope.
`),
	)
}

func Task() common.Task[Flags] {
	return func(
		ctx context.Context,
		logger *zap.Logger,
		client rest.RipenClient,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		var asOf *time.Time
		if s := cl.Flags().AsOf; s != "" {
			t, err := rfctime.ParseRFC3339DateTime(s)
			if err != nil {
				return fmt.Errorf("%w: --as-of: %w", flarc.ErrUsage, err)
			}
			tt := t.Time()
			asOf = &tt
		}

		summary, err := client.Train(ctx, asOf)
		if err != nil {
			return err
		}
		logger.Info(
			"trained",
			zap.String("version_id", summary.Version.VersionId),
			zap.Bool("promoted", summary.Promoted),
		)

		enc := json.NewEncoder(cl.Stdout())
		enc.SetIndent("", "    ")
		return enc.Encode(summary)
	}
}
