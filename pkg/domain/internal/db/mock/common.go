// Package mocks holds helpers shared by store mocks.
package mocks

// CallLog records arguments of each call of a mocked method.
type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}
