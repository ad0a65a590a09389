package models

import (
	models_list "github.com/opst/ripen/cmd/ripen/subcommands/models/list"
	models_rollback "github.com/opst/ripen/cmd/ripen/subcommands/models/rollback"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	list, err := models_list.New()
	if err != nil {
		return nil, err
	}
	rollback, err := models_rollback.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Manipulate model versions.",
		struct{}{},
		flarc.WithSubcommand("list", list),
		flarc.WithSubcommand("rollback", rollback),
	)
}
