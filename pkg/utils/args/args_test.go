package args_test

import (
	"flag"
	"io"
	"testing"

	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/utils/args"
)

func TestArgs(t *testing.T) {
	for name, testcase := range map[string]struct {
		when      []string
		then      domain.LoopType
		thenIsSet bool
		wantError bool
	}{
		"when known loop type is passed, it is parsed": {
			when: []string{"-type", "resolve"}, then: domain.Resolve, thenIsSet: true,
		},
		"when no flag is passed, default is kept": {
			when: []string{}, then: domain.Train, thenIsSet: false,
		},
		"when unknown loop type is passed, it is an error": {
			when: []string{"-type", "nothing"}, wantError: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			testee := args.WithDefault(domain.AsLoopType, domain.Train)

			f := flag.NewFlagSet("test", flag.ContinueOnError)
			f.SetOutput(io.Discard)
			f.Var(testee, "type", "")

			err := f.Parse(testcase.when)
			if testcase.wantError {
				if err == nil {
					t.Error("expected error is not returned")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if testee.Value() != testcase.then {
				t.Errorf("unexpected value: %s", testee.Value())
			}
			if testee.IsSet() != testcase.thenIsSet {
				t.Errorf("unexpected IsSet: %v", testee.IsSet())
			}
		})
	}
}
