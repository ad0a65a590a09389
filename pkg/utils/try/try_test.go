package try_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/opst/ripen/pkg/utils/try"
)

type fataler struct {
	called []any
}

func (f *fataler) Fatal(v ...any) {
	f.called = append(f.called, v...)
}

func TestTry(t *testing.T) {
	t.Run("ok value is returned as it is", func(t *testing.T) {
		f := &fataler{}
		if v := try.To(strconv.Atoi("42")).OrFatal(f); v != 42 {
			t.Errorf("unexpected value: %d", v)
		}
		if len(f.called) != 0 {
			t.Errorf("Fatal is called: %v", f.called)
		}
	})

	t.Run("error causes Fatal", func(t *testing.T) {
		f := &fataler{}
		try.To(strconv.Atoi("forty-two")).OrFatal(f)
		if len(f.called) != 1 {
			t.Fatalf("Fatal is not called once: %v", f.called)
		}
		if _, ok := f.called[0].(error); !ok {
			t.Errorf("Fatal is called with non-error: %v", f.called[0])
		}
	})

	t.Run("OrDefault falls back on error", func(t *testing.T) {
		if v := try.To(0, errors.New("fake")).OrDefault(7); v != 7 {
			t.Errorf("unexpected value: %d", v)
		}
		if v := try.To(3, nil).OrDefault(7); v != 3 {
			t.Errorf("unexpected value: %d", v)
		}
	})

	t.Run("Map converts only ok values", func(t *testing.T) {
		double := func(i int) int { return i * 2 }

		if v, err := try.Map(try.To(21, nil), double).Get(); err != nil || v != 42 {
			t.Errorf("unexpected: (%d, %v)", v, err)
		}

		expectedErr := errors.New("fake")
		if _, err := try.Map(try.To(21, expectedErr), double).Get(); !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
