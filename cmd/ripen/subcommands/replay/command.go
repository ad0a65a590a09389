package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	pb "github.com/cheggaaa/pb/v3"
	"github.com/opst/ripen/cmd/ripen/rest"
	"github.com/opst/ripen/cmd/ripen/subcommands/common"
	"github.com/opst/ripen/pkg/ingest"
	"github.com/youta-t/flarc"
	"go.uber.org/zap"
)

type Flags struct {
	Path            string `flag:"path" help:"ingestion path. online|simulated"`
	Interval        string `flag:"interval" help:"wait between batches (Go duration, e.g. 500ms)"`
	MaxRows         int    `flag:"max-rows" help:"maximum readings in a request"`
	DryRun          bool   `flag:"dry-run" help:"prepare batches but do not send them"`
	ContinueOnError bool   `flag:"continue-on-error" help:"keep replaying when a batch is rejected"`
}

const ARG_CSV = "CSV"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Replay telemetry CSV to ripend in daily batches.",
		Flags{
			Path:     string(ingest.PathOnline),
			Interval: "1s",
			MaxRows:  ingest.DefaultMaxBatchSize,
		},
		flarc.Args{
			{
				Name: ARG_CSV, Required: true,
				Help: "path to telemetry CSV",
			},
		},
		common.NewTask(Task(time.After)),
		flarc.WithDescription(`
Replay telemetry CSV to ripend in daily batches.

Rows are sorted by (timestamp, patient id), and grouped by UTC day.
A day having more than --max-rows readings is split into chunks.

Column names of generated datasets (e.g. "Patient_ID", "Target_Fail_Next_7d") are accepted.
Labels in the CSV are trusted only when --path is "simulated", which needs a token with admin scope.
`),
	)
}

// Summary of a replay.
type Summary struct {
	PreparedBatches int
	PreparedRows    int
	SentBatches     int
	SentRows        int
	InsertedRows    int
}

// Task replays CSV. wait is called between batches (time.After for real).
func Task(wait func(time.Duration) <-chan time.Time) common.Task[Flags] {
	return func(
		ctx context.Context,
		logger *zap.Logger,
		client rest.RipenClient,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		flags := cl.Flags()
		path, err := ingest.AsPath(flags.Path)
		if err != nil {
			return errors.Join(flarc.ErrUsage, err)
		}
		interval, err := time.ParseDuration(flags.Interval)
		if err != nil || interval < 0 {
			return fmt.Errorf("%w: --interval should be non-negative duration: %s", flarc.ErrUsage, flags.Interval)
		}
		if flags.MaxRows <= 0 {
			return fmt.Errorf("%w: --max-rows should be positive", flarc.ErrUsage)
		}

		csvPath := cl.Args()[ARG_CSV][0]
		f, err := os.Open(csvPath)
		if err != nil {
			return err
		}
		defer f.Close()

		readings, err := ReadCSV(f)
		if err != nil {
			return fmt.Errorf("%s: %w", csvPath, err)
		}
		batches := DailyBatches(readings, flags.MaxRows)
		logger.Info("readings are prepared", zap.Int("rows", len(readings)), zap.Int("batches", len(batches)))

		summary := Summary{}
		defer func() {
			fmt.Fprintf(
				cl.Stdout(),
				"prepared_batches=%d prepared_rows=%d sent_batches=%d sent_rows=%d inserted_rows=%d\n",
				summary.PreparedBatches, summary.PreparedRows,
				summary.SentBatches, summary.SentRows, summary.InsertedRows,
			)
		}()

		var bar *pb.ProgressBar
		if !flags.DryRun {
			bar = pb.New(len(readings))
			bar.SetWriter(cl.Stderr())
			if err := bar.Err(); err != nil {
				return err
			}
			bar.Start()
			defer bar.Finish()
		}

		var failed error
		for i, batch := range batches {
			summary.PreparedBatches += 1
			summary.PreparedRows += len(batch.Readings)
			logger.Debug("batch", zap.Int("index", i+1), zap.String("label", batch.Label), zap.Int("rows", len(batch.Readings)))

			if flags.DryRun {
				continue
			}
			if 0 < i && 0 < interval {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-wait(interval):
				}
			}

			bar.Set("prefix", batch.Label+":")
			result, err := client.Ingest(ctx, path, batch.Readings)
			bar.Add(len(batch.Readings))
			if err != nil {
				logger.Error("batch is not sent", zap.String("label", batch.Label), zap.Error(err))
				if !flags.ContinueOnError {
					return fmt.Errorf("batch %s: %w", batch.Label, err)
				}
				failed = errors.Join(failed, fmt.Errorf("batch %s: %w", batch.Label, err))
				continue
			}
			summary.SentBatches += 1
			summary.SentRows += len(batch.Readings)
			summary.InsertedRows += result.Inserted
		}
		return failed
	}
}
