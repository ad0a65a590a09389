package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ripen "github.com/opst/ripen/pkg"
	"github.com/opst/ripen/pkg/auth"
	configs "github.com/opst/ripen/pkg/configs/backend"
	"github.com/opst/ripen/pkg/logging"
	"github.com/opst/ripen/pkg/metrics"
	"github.com/opst/ripen/pkg/utils/filewatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	pconfig := flag.String(
		"config", os.Getenv("RIPEN_CONFIG"), "path to config file",
	)
	schemaRepo := flag.String("schema-repo", os.Getenv("RIPEN_SCHEMA"), "schema repository path")
	loglevel := flag.String("loglevel", "", "log level. debug|info|warn|error (default: from config)")
	flag.Parse()

	conf, err := configs.LoadBackendConfig(*pconfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can not read configuration: %s\n", err)
		os.Exit(1)
	}
	level := conf.LogLevel()
	if *loglevel != "" {
		level = *loglevel
	}
	logger, err := logging.New(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can not create logger: %s\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.Named("ripend")

	os.Exit(serve(conf, *schemaRepo, *pconfig, level, logger))
}

func serve(conf *configs.BackendConfig, schemaRepo string, configPath string, level string, logger *zap.Logger) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// config file is not reloaded. quit to be restarted with new one.
	ctx, cancelWatch, err := filewatch.UntilModifyContext(ctx, configPath)
	if err != nil {
		logger.Error("can not watch config file", zap.Error(err))
		return 1
	}
	defer cancelWatch()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r, err := ripen.Attach(
		ctx, conf,
		ripen.WithSchemaRepository(schemaRepo),
		ripen.WithMetrics(metrics.New(reg)),
		ripen.WithLogger(logger),
	)
	if err != nil {
		logger.Error("can not attach stores", zap.Error(err))
		return 1
	}
	defer r.Close()

	if schema := r.Schema(); schema != nil {
		sctx, scancel := schema.Context(ctx)
		defer scancel()
		ctx = sctx
	}

	server := BuildServer(
		Backend{
			Ingester:       r.Ingester(),
			Telemetry:      r.Telemetry(),
			MaturityWindow: conf.Telemetry().MaturityWindow(),
			Outcomes:       r.Outcomes(),
			Trainer:        r.Trainer(),
			Registry:       r.Registry(),
			Scorer:         r.Scorer(),
		},
		auth.New(conf.Auth().SignKey(), conf.Auth().Issuer()),
		reg,
		logger.Named("http"),
		level,
	)
	for _, route := range server.Routes() {
		logger.Debug("mount handler", zap.String("route", strings.ToUpper(route.Method)+" "+route.Path))
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		if err := server.Start(fmt.Sprintf(":%d", conf.Port())); err != nil && err != http.ErrServerClosed {
			ch <- err
		}
	}()

	exit := 0
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
			logger.Info("context has been done", zap.NamedError("cause", cause))
			exit = 1
		}
	case err := <-ch:
		if err != nil {
			logger.Error("server stops with error", zap.Error(err))
			exit = 1
		}
	}

	logger.Info("shutting down...")
	qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer qcancel()
	if err := server.Shutdown(qctx); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
		return 1
	}
	return exit
}
