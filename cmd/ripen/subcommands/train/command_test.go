package train_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opst/ripen/cmd/ripen/rest/mock"
	"github.com/opst/ripen/cmd/ripen/subcommands/internal/commandline"
	"github.com/opst/ripen/cmd/ripen/subcommands/train"
	apimodels "github.com/opst/ripen/pkg/api/types/models"
	apitraining "github.com/opst/ripen/pkg/api/types/training"
	"github.com/youta-t/flarc"
	"go.uber.org/zap"
)

func TestTask(t *testing.T) {
	run := func(t *testing.T, flags train.Flags) (*mock.MockClient, string, error) {
		client := mock.New(t)
		client.Impl.Train = func(context.Context, *time.Time) (apitraining.Summary, error) {
			return apitraining.Summary{
				Version:  apimodels.Detail{VersionId: "v4"},
				Promoted: true,
			}, nil
		}
		stdout := new(strings.Builder)
		err := train.Task()(
			context.Background(), zap.NewNop(), client,
			commandline.MockCommandline[train.Flags]{
				Fullname_: "ripen train",
				Stdout_:   stdout,
				Flags_:    flags,
			},
			[]any{},
		)
		return client, stdout.String(), err
	}

	t.Run("without --as-of, it trains as of now", func(t *testing.T) {
		client, out, err := run(t, train.Flags{})
		if err != nil {
			t.Fatal(err)
		}
		if len(client.Calls.Train) != 1 || client.Calls.Train[0] != nil {
			t.Errorf("unexpected calls: %v", client.Calls.Train)
		}
		if !strings.Contains(out, `"version_id": "v4"`) {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("with --as-of, it passes the time", func(t *testing.T) {
		client, _, err := run(t, train.Flags{AsOf: "2024-02-01T09:00:00+09:00"})
		if err != nil {
			t.Fatal(err)
		}
		expected := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		if len(client.Calls.Train) != 1 || client.Calls.Train[0] == nil || !client.Calls.Train[0].Equal(expected) {
			t.Errorf("unexpected calls: %v", client.Calls.Train)
		}
	})

	t.Run("broken --as-of is usage error", func(t *testing.T) {
		client, _, err := run(t, train.Flags{AsOf: "yesterday"})
		if !errors.Is(err, flarc.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(client.Calls.Train) != 0 {
			t.Error("job is requested")
		}
	})
}
