package filewatch_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opst/ripen/pkg/utils/filewatch"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context is not cancelled")
	}
}

func TestUntilModifyContext(t *testing.T) {
	for name, modify := range map[string]func(t *testing.T, file string){
		"written": func(t *testing.T, file string) {
			if err := os.WriteFile(file, []byte("port: 8080"), 0o644); err != nil {
				t.Fatal(err)
			}
		},
		"removed": func(t *testing.T, file string) {
			if err := os.Remove(file); err != nil {
				t.Fatal(err)
			}
		},
		"renamed": func(t *testing.T, file string) {
			if err := os.Rename(file, file+".old"); err != nil {
				t.Fatal(err)
			}
		},
	} {
		t.Run("when a watched file is "+name+", it cancels context", func(t *testing.T) {
			dir := t.TempDir()
			file := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(file, []byte{}, 0o644); err != nil {
				t.Fatal(err)
			}

			ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file, "")
			if err != nil {
				t.Fatal(err)
			}
			defer cancel()

			if err := ctx.Err(); err != nil {
				t.Fatalf("context is done too early: %v", err)
			}

			modify(t, file)
			waitDone(t, ctx)

			if cause := context.Cause(ctx); !strings.Contains(cause.Error(), "config.yaml") {
				t.Errorf("cause does not tell the file: %v", cause)
			}
		})
	}

	t.Run("when a missing file is passed, it returns error", func(t *testing.T) {
		_, _, err := filewatch.UntilModifyContext(
			context.Background(), filepath.Join(t.TempDir(), "missing"),
		)
		if err == nil {
			t.Error("expected error is not returned")
		}
	})
}
