// Package dataitems provides a small set of ready-made data item handlers
// for the common shapes an application builds directly, composable on
// top of the dependency graph the core dispatch engine maintains:
// application-set leaf values, pass-through aliases, accumulators over a
// source item, a wall-clock tick, and a bridge to a topic's messages.
package dataitems

import (
	"github.com/gboxsw/miniac"
	"github.com/gboxsw/miniac/converters"
)

// Local is a leaf data item whose value is set directly by application
// code through Item.RequestChange rather than computed from dependencies.
// It is the usual starting point of a dependency graph. If codec is
// non-nil, the item's value survives a restart.
type Local[T any] struct {
	initial T
	codec   converters.Converter[T, string]

	current T
}

// NewLocal constructs a Local handler with the given initial value. codec
// may be nil, in which case the item's value is not persisted.
func NewLocal[T any](initial T, codec converters.Converter[T, string]) *Local[T] {
	return &Local[T]{initial: initial, codec: codec}
}

// OnActivate implements miniac.Handler.
func (h *Local[T]) OnActivate(item *miniac.Item[T], saved miniac.Bundle) error {
	h.current = h.initial
	if h.codec != nil {
		if raw, ok := saved["value"]; ok {
			if v, err := h.codec.Backward(raw); err == nil {
				h.current = v
			}
		}
	}
	return nil
}

// OnSynchronizeValue implements miniac.Handler.
func (h *Local[T]) OnSynchronizeValue(item *miniac.Item[T]) (T, error) {
	return h.current, nil
}

// OnValueChangeRequested implements miniac.Handler.
func (h *Local[T]) OnValueChangeRequested(item *miniac.Item[T], value T) error {
	h.current = value
	item.Invalidate()
	return nil
}

// OnSaveState implements miniac.Handler.
func (h *Local[T]) OnSaveState(item *miniac.Item[T], out miniac.Bundle) {
	if h.codec == nil {
		return
	}
	if text, err := h.codec.Forward(h.current); err == nil {
		out["value"] = text
	}
}

// OnDeactivate implements miniac.Handler.
func (h *Local[T]) OnDeactivate(item *miniac.Item[T]) {}
