package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opst/ripen/cmd/ripen/subcommands/common"
	submodels "github.com/opst/ripen/cmd/ripen/subcommands/models"
	subreplay "github.com/opst/ripen/cmd/ripen/subcommands/replay"
	subtoken "github.com/opst/ripen/cmd/ripen/subcommands/token"
	subtrain "github.com/opst/ripen/cmd/ripen/subcommands/train"
	"github.com/youta-t/flarc"
)

func main() {
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	cmd, err := build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(flarc.Run(ctx, cmd, flarc.WithHelp(true)))
}

func build() (flarc.Command, error) {
	replay, err := subreplay.New()
	if err != nil {
		return nil, err
	}
	models, err := submodels.New()
	if err != nil {
		return nil, err
	}
	train, err := subtrain.New()
	if err != nil {
		return nil, err
	}
	token, err := subtoken.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"ripen commandline interface",
		common.Flags(),
		flarc.WithSubcommand("replay", replay),
		flarc.WithSubcommand("models", models),
		flarc.WithSubcommand("train", train),
		flarc.WithSubcommand("token", token),
	)
}
