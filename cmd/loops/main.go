package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/ripen/cmd/loops/recurring"
	ripen "github.com/opst/ripen/pkg"
	configs "github.com/opst/ripen/pkg/configs/backend"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/logging"
	"github.com/opst/ripen/pkg/metrics"
	"github.com/opst/ripen/pkg/utils/args"
	"github.com/opst/ripen/pkg/utils/filewatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	pconfig := flag.String(
		"config", os.Getenv("RIPEN_CONFIG"), "path to config file",
	)
	pSchemaRepo := flag.String(
		"schema-repo", os.Getenv("RIPEN_SCHEMA"), "schema repository path",
	)
	pMetrics := flag.String(
		"metrics", "", "address to expose prometheus metrics (e.g. :9090). not exposed if empty.",
	)
	loopType := args.Parser(domain.AsLoopType)
	flag.Var(loopType, "type", "one of loop type: resolve|train|consume")
	policy := args.WithDefault(recurring.ParsePolicy, recurring.Forever(time.Minute))
	flag.Var(
		policy, "policy",
		`loop policy (syntax: forever[:COOLDOWN]|backlog).`+
			` "forever[:COOLDOWN]" = run forever until error. When backlog is over, `+
			`wait COOLDOWN (optional duration. default: 0) as interval.`+
			` "backlog" = run until error or backlog is over.`,
	)
	flag.Parse()

	if !loopType.IsSet() {
		fmt.Fprintln(os.Stderr, "-type is required")
		os.Exit(2)
	}

	conf, err := configs.LoadBackendConfig(*pconfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can not read configuration: %s\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(conf.LogLevel())
	if err != nil {
		fmt.Fprintf(os.Stderr, "can not create logger: %s\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.Named("loops")

	{
		// config is not reloaded. quit to be restarted with new one.
		wctx, cancel, err := filewatch.UntilModifyContext(ctx, *pconfig)
		if err != nil {
			logger.Fatal("can not watch config file", zap.Error(err))
		}
		defer cancel()
		ctx = wctx
	}

	reg := prometheus.NewRegistry()
	r, err := ripen.Attach(
		ctx, conf,
		ripen.WithSchemaRepository(*pSchemaRepo),
		ripen.WithMetrics(metrics.New(reg)),
		ripen.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("can not attach stores", zap.Error(err))
	}
	defer r.Close()

	if schema := r.Schema(); schema != nil {
		sctx, scancel := schema.Context(ctx)
		defer scancel()
		ctx = sctx
	}

	if addr := *pMetrics; addr != "" {
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
		go func() {
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stops", zap.Error(err))
			}
		}()
		defer e.Close()
	}

	logger.Info(
		"start loop",
		zap.Stringer("type", loopType.Value()),
		zap.Stringer("policy", policy.Value()),
	)

	err = StartLoop(
		ctx, logger, r,
		LoopManifest{
			Type:   loopType.Value(),
			Policy: recurring.UntilError(policy.Value()),
		},
	)

	if err == nil {
		logger.Info("loop is over")
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("loop is cancelled", zap.NamedError("cause", context.Cause(ctx)))
		return
	}
	logger.Error("loop stops with error", zap.Error(err))
	os.Exit(1)
}
