package domain

import (
	"errors"
	"fmt"
)

type LoopType string

const (
	// resolve labels of matured readings
	Resolve LoopType = "resolve"

	// train, evaluate and promote a model
	Train LoopType = "train"

	// consume telemetry batches from the message broker
	Consume LoopType = "consume"
)

func (lt LoopType) String() string {
	return string(lt)
}

func (lt LoopType) IsKnown() bool {
	switch lt {
	case Resolve, Train, Consume:
		return true
	default:
		return false
	}
}

func AsLoopType(s string) (LoopType, error) {
	l := LoopType(s)
	if l.IsKnown() {
		return l, nil
	}
	return l, fmt.Errorf(`%w: "%s"`, ErrUnknownLoopType, s)
}

var ErrUnknownLoopType = errors.New("unknown loop type")
