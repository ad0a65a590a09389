package rollback

import (
	"context"
	"encoding/json"

	"github.com/opst/ripen/cmd/ripen/rest"
	"github.com/opst/ripen/cmd/ripen/subcommands/common"
	"github.com/youta-t/flarc"
	"go.uber.org/zap"
)

const ARG_VERSION_ID = "VERSION_ID"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Activate a retired model version.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_VERSION_ID, Required: true,
				Help: "model version to be active",
			},
		},
		common.NewTask(Task()),
		flarc.WithDescription(`
Activate a retired model version. The active one is retired.

It needs a token with operator scope.
`),
	)
}

func Task() common.Task[struct{}] {
	return func(
		ctx context.Context,
		logger *zap.Logger,
		client rest.RipenClient,
		cl flarc.Commandline[struct{}],
		params []any,
	) error {
		versionId := cl.Args()[ARG_VERSION_ID][0]
		detail, err := client.Rollback(ctx, versionId)
		if err != nil {
			return err
		}
		logger.Info("rolled back", zap.String("version_id", detail.VersionId))

		enc := json.NewEncoder(cl.Stdout())
		enc.SetIndent("", "    ")
		return enc.Encode(detail)
	}
}
