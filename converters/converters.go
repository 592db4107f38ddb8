// Package converters provides small, composable bidirectional value
// transforms used to bridge a data item's typed value and the text or
// binary representation a gateway or message actually carries.
package converters

import (
	"strconv"
)

// Converter translates between a data item's value type S and the wire
// representation T. Forward runs when a value flows out toward a message
// (e.g. publishing); Backward runs when a value flows in from one (e.g. a
// dataitems.Msg reacting to an inbound message).
type Converter[S, T any] interface {
	Forward(S) (T, error)
	Backward(T) (S, error)
}

// Funcs adapts a pair of plain functions to a Converter.
type Funcs[S, T any] struct {
	ForwardFunc  func(S) (T, error)
	BackwardFunc func(T) (S, error)
}

// Forward implements Converter.
func (f Funcs[S, T]) Forward(s S) (T, error) { return f.ForwardFunc(s) }

// Backward implements Converter.
func (f Funcs[S, T]) Backward(t T) (S, error) { return f.BackwardFunc(t) }

// reversed flips a Converter[S, T] into a Converter[T, S].
type reversed[S, T any] struct {
	inner Converter[S, T]
}

func (r reversed[S, T]) Forward(t T) (S, error)  { return r.inner.Backward(t) }
func (r reversed[S, T]) Backward(s S) (T, error) { return r.inner.Forward(s) }

// Reverse returns a Converter[T, S] that forwards where c backwards and
// backwards where c forwards.
func Reverse[S, T any](c Converter[S, T]) Converter[T, S] {
	return reversed[S, T]{inner: c}
}

// chained composes two converters end to end.
type chained[A, B, C any] struct {
	first  Converter[A, B]
	second Converter[B, C]
}

func (c chained[A, B, C]) Forward(a A) (C, error) {
	b, err := c.first.Forward(a)
	if err != nil {
		var zero C
		return zero, err
	}
	return c.second.Forward(b)
}

func (c chained[A, B, C]) Backward(cv C) (A, error) {
	b, err := c.second.Backward(cv)
	if err != nil {
		var zero A
		return zero, err
	}
	return c.first.Backward(b)
}

// Chain composes first and second so the result converts directly from A to
// C and back, without the caller ever holding an intermediate B.
func Chain[A, B, C any](first Converter[A, B], second Converter[B, C]) Converter[A, C] {
	return chained[A, B, C]{first: first, second: second}
}

// BoolToText converts between bool and its "true"/"false" text form.
var BoolToText Converter[bool, string] = Funcs[bool, string]{
	ForwardFunc:  func(v bool) (string, error) { return strconv.FormatBool(v), nil },
	BackwardFunc: func(s string) (bool, error) { return strconv.ParseBool(s) },
}

// IntToText converts between int and its base-10 text form.
var IntToText Converter[int, string] = Funcs[int, string]{
	ForwardFunc: func(v int) (string, error) { return strconv.Itoa(v), nil },
	BackwardFunc: func(s string) (int, error) {
		return strconv.Atoi(s)
	},
}

// Int64ToText converts between int64 and its base-10 text form.
var Int64ToText Converter[int64, string] = Funcs[int64, string]{
	ForwardFunc: func(v int64) (string, error) { return strconv.FormatInt(v, 10), nil },
	BackwardFunc: func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	},
}

// DoubleToText converts between float64 and its shortest round-trippable text form.
var DoubleToText Converter[float64, string] = Funcs[float64, string]{
	ForwardFunc: func(v float64) (string, error) { return strconv.FormatFloat(v, 'g', -1, 64), nil },
	BackwardFunc: func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	},
}

// StringToText is the identity converter, useful as a Chain endpoint.
var StringToText Converter[string, string] = Funcs[string, string]{
	ForwardFunc:  func(v string) (string, error) { return v, nil },
	BackwardFunc: func(v string) (string, error) { return v, nil },
}
