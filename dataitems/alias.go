package dataitems

import "github.com/gboxsw/miniac"

// Alias exposes another item's value, unchanged, under a second ID. Write
// requests are forwarded to the source item, so an Alias over a writable
// item is itself writable.
type Alias[T any] struct {
	source *miniac.Item[T]
}

// NewAlias constructs an Alias handler over source.
func NewAlias[T any](source *miniac.Item[T]) *Alias[T] {
	return &Alias[T]{source: source}
}

// OnActivate implements miniac.Handler.
func (h *Alias[T]) OnActivate(item *miniac.Item[T], saved miniac.Bundle) error {
	return item.SetDependencies(h.source)
}

// OnSynchronizeValue implements miniac.Handler.
func (h *Alias[T]) OnSynchronizeValue(item *miniac.Item[T]) (T, error) {
	v, _ := h.source.Value()
	return v, nil
}

// OnValueChangeRequested implements miniac.Handler, forwarding to the source item.
func (h *Alias[T]) OnValueChangeRequested(item *miniac.Item[T], value T) error {
	return h.source.RequestChange(value)
}

// OnSaveState implements miniac.Handler with a no-op; the source item owns persistence.
func (h *Alias[T]) OnSaveState(item *miniac.Item[T], out miniac.Bundle) {}

// OnDeactivate implements miniac.Handler with a no-op.
func (h *Alias[T]) OnDeactivate(item *miniac.Item[T]) {}
