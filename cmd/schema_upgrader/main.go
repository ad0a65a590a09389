package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	kpool "github.com/opst/ripen/pkg/conn/db/postgres/pool"
	pgschema "github.com/opst/ripen/pkg/domain/schema/db/postgres"
	kio "github.com/opst/ripen/pkg/io"
	"github.com/opst/ripen/pkg/logging"
	"github.com/youta-t/flarc"
	"go.uber.org/zap"
)

type Flag struct {
	Host     string `flag:"host" help:"The host of the database."`
	Port     int    `flag:"port" help:"The port of the database."`
	User     string `flag:"user" help:"The user of the database."`
	Password string `flag:"pass" help:"The password of the database."`
	Database string `flag:"database" help:"The name of the database."`

	Schema   string `flag:"schema" help:"The path to the schema repository directory."`
	LogLevel string `flag:"loglevel" help:"debug|info|warn|error"`
}

const ARG_SCHEMA_DEST = "ARG_SCHEMA_DEST"

func main() {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	port := 5432
	if sp := os.Getenv("DB_PORT"); sp != "" {
		p, err := strconv.Atoi(sp)
		if err == nil {
			port = p
		}
	}

	cmd, err := flarc.NewCommand(
		"database schema upgrader",
		Flag{
			Host:     os.Getenv("DB_HOST"),
			Port:     port,
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: os.Getenv("DB_NAME"),

			Schema:   os.Getenv("RIPEN_SCHEMA"),
			LogLevel: "info",
		},
		flarc.Args{
			{
				Name: ARG_SCHEMA_DEST, Help: "The schema files are copied to these directories.",
				Required: false, Repeatable: false,
			},
		},
		func(ctx context.Context, c flarc.Commandline[Flag], a []any) error {
			flags := c.Flags()
			logger, err := logging.NewWithWriter(flags.LogLevel, c.Stderr())
			if err != nil {
				return err
			}
			defer logger.Sync()
			logger = logger.Named("schema_upgrader")

			if flags.Schema == "" {
				return fmt.Errorf("%w: --schema is required", flarc.ErrUsage)
			}

			dest := c.Args()[ARG_SCHEMA_DEST]
			if len(dest) != 0 {
				logger.Info("copying schema files...", zap.String("to", dest[0]))
				if err := kio.DirCopy(flags.Schema, dest[0]); err != nil {
					return err
				}
			}

			pool, err := kpool.Connect(
				ctx,
				fmt.Sprintf(
					"postgres://%s:%s@%s:%d/%s",
					flags.User, flags.Password, flags.Host, flags.Port, flags.Database,
				),
			)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := pgschema.New(pool, flags.Schema)
			before, err := schema.Version(ctx)
			if err != nil {
				return err
			}
			if err := schema.Upgrade(ctx); err != nil {
				return err
			}
			after, err := schema.Version(ctx)
			if err != nil {
				return err
			}
			logger.Info("schema is up to date", zap.Int("from", before), zap.Int("to", after))
			return nil
		},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	os.Exit(flarc.Run(ctx, cmd))
}
