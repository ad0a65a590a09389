package list

import (
	"context"
	"encoding/json"

	"github.com/opst/ripen/cmd/ripen/rest"
	"github.com/opst/ripen/cmd/ripen/subcommands/common"
	"github.com/youta-t/flarc"
	"go.uber.org/zap"
)

type Flags struct {
	Status string `flag:"status" help:"show only versions in this status. candidate|active|retired|rejected"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"List model versions, newest first.",
		Flags{},
		flarc.Args{},
		common.NewTask(Task()),
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
		models, err := client.ListModels(ctx)
		if err != nil {
			return err
		}
		if status := cl.Flags().Status; status != "" {
			filtered := models[:0]
			for _, m := range models {
				if m.Status == status {
					filtered = append(filtered, m)
				}
			}
			models = filtered
		}

		enc := json.NewEncoder(cl.Stdout())
		enc.SetIndent("", "    ")
		return enc.Encode(models)
	}
}
