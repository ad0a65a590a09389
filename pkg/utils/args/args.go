// Package args adapts typed parsers to flag.Value.
package args

type Adapter[T interface{ String() string }] struct {
	value  T
	parser func(string) (T, error)
	isSet  bool
}

func (a *Adapter[T]) String() string {
	if a.isSet {
		return a.value.String()
	}
	return ""
}

func (a *Adapter[T]) Set(s string) error {
	v, err := a.parser(s)
	if err != nil {
		return err
	}
	a.isSet = true
	a.value = v
	return nil
}

func (a *Adapter[T]) Value() T {
	return a.value
}

func (a *Adapter[T]) IsSet() bool {
	return a.isSet
}

// Parser creates a flag.Value parsing strings with parser.
func Parser[T interface{ String() string }](parser func(string) (T, error)) *Adapter[T] {
	return &Adapter[T]{parser: parser}
}

// WithDefault creates a flag.Value with default value.
//
// IsSet is false until Set is called.
func WithDefault[T interface{ String() string }](parser func(string) (T, error), d T) *Adapter[T] {
	return &Adapter[T]{parser: parser, value: d}
}
