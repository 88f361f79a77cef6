package stack

import (
	"errors"
)

var ErrEmptyStack = errors.New("empty stack")

// Stack is a growable LIFO sequence. It is not safe for concurrent use;
// callers own it for the duration of one operation.
type Stack[T any] struct {
	s []T
}

func New[T any](initialSize int) *Stack[T] {
	return &Stack[T]{make([]T, 0, initialSize)}
}

func (s *Stack[T]) Push(value T) {
	s.s = append(s.s, value)
}

func (s *Stack[T]) Pop() (value T, err error) {
	l := len(s.s)
	if l == 0 {
		return value, ErrEmptyStack
	}

	value = s.s[l-1]
	s.s = s.s[:l-1]
	return value, nil
}

func (s *Stack[T]) Size() int {
	return len(s.s)
}

func (s *Stack[T]) Empty() bool {
	return len(s.s) == 0
}
