package token

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opst/ripen/cmd/ripen/subcommands/common"
	"github.com/opst/ripen/pkg/auth"
	"github.com/youta-t/flarc"
	"go.uber.org/zap"
)

type Flags struct {
	KeyFile string `flag:"key-file" help:"file containing the sign key of ripend"`
	KeyEnv  string `flag:"key-env" help:"environment variable containing the sign key (used when --key-file is empty)"`
	Issuer  string `flag:"issuer" help:"issuer configured in ripend"`
	Subject string `flag:"subject" help:"who uses the token"`
	TTL     string `flag:"ttl" help:"lifetime of the token (Go duration). 0 for no expiry"`
	Scope   string `flag:"scope" help:"comma separated scopes. operator|admin"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Mint a bearer token for ripend.",
		Flags{
			KeyEnv: "RIPEN_SIGN_KEY",
			Issuer: "ripen",
			TTL:    "24h",
			Scope:  string(auth.ScopeOperator),
		},
		flarc.Args{},
		common.NewTaskWithCommonFlag(Task(os.ReadFile, os.Getenv)),
		flarc.WithDescription(`
Mint a bearer token for ripend, signed with the same key as ripend.

"operator" scope allows ingestion, outcome recording, training and rollback.
"admin" scope also allows ingestion on the simulated path.
`),
	)
}

// Task mints a token. readFile and getenv are os.ReadFile and os.Getenv for real.
func Task(
	readFile func(string) ([]byte, error),
	getenv func(string) string,
) common.TaskWithCommonFlag[Flags] {
	return func(
		ctx context.Context,
		logger *zap.Logger,
		_ common.CommonFlags,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		flags := cl.Flags()
		if flags.Subject == "" {
			return fmt.Errorf("%w: --subject is required", flarc.ErrUsage)
		}
		ttl, err := time.ParseDuration(flags.TTL)
		if err != nil || ttl < 0 {
			return fmt.Errorf("%w: --ttl should be non-negative duration: %s", flarc.ErrUsage, flags.TTL)
		}
		scopes := []auth.Scope{}
		for _, s := range strings.Split(flags.Scope, ",") {
			scope, err := auth.AsScope(strings.TrimSpace(s))
			if err != nil {
				return errors.Join(flarc.ErrUsage, err)
			}
			scopes = append(scopes, scope)
		}

		var key []byte
		if flags.KeyFile != "" {
			k, err := readFile(flags.KeyFile)
			if err != nil {
				return err
			}
			key = []byte(strings.TrimSpace(string(k)))
		} else if flags.KeyEnv != "" {
			key = []byte(getenv(flags.KeyEnv))
		}
		if len(key) < 32 {
			return fmt.Errorf("%w: sign key should be 32 bytes or longer", flarc.ErrUsage)
		}

		token, err := auth.New(key, flags.Issuer).Mint(flags.Subject, ttl, scopes...)
		if err != nil {
			return err
		}
		logger.Debug("minted", zap.String("subject", flags.Subject), zap.Duration("ttl", ttl))
		_, err = fmt.Fprintln(cl.Stdout(), token)
		return err
	}
}
