package dataitems

import (
	"reflect"

	"github.com/gboxsw/miniac"
	"github.com/gboxsw/miniac/converters"
	"github.com/gboxsw/miniac/errors"
)

// Accumulating folds every distinct value observed on a source item into a
// running total, using a caller-supplied Combine function. Typical uses are
// a running sum over a counter reading or a running max over a sensor
// reading. It is read-only: write requests are rejected. If codec is
// non-nil, both the running total and the last-seen source value survive a
// restart, so accumulation resumes correctly rather than restarting from
// initial.
type Accumulating[T any] struct {
	source  *miniac.Item[T]
	combine func(acc, next T) T
	codec   converters.Converter[T, string]

	acc         T
	lastSeen    T
	hasLastSeen bool
}

// NewAccumulating constructs an Accumulating handler seeded with initial,
// folding every new value of source into the accumulator via combine. codec
// may be nil, in which case the accumulator is not persisted.
func NewAccumulating[T any](source *miniac.Item[T], initial T, combine func(acc, next T) T, codec converters.Converter[T, string]) *Accumulating[T] {
	return &Accumulating[T]{source: source, acc: initial, combine: combine, codec: codec}
}

// OnActivate implements miniac.Handler.
func (h *Accumulating[T]) OnActivate(item *miniac.Item[T], saved miniac.Bundle) error {
	if h.codec != nil {
		if raw, ok := saved["value"]; ok {
			if v, err := h.codec.Backward(raw); err == nil {
				h.acc = v
			}
		}
		if raw, ok := saved["source"]; ok {
			if v, err := h.codec.Backward(raw); err == nil {
				h.lastSeen, h.hasLastSeen = v, true
			}
		}
	}
	return item.SetDependencies(h.source)
}

// OnSynchronizeValue implements miniac.Handler.
func (h *Accumulating[T]) OnSynchronizeValue(item *miniac.Item[T]) (T, error) {
	v, ok := h.source.Value()
	if ok && (!h.hasLastSeen || !reflect.DeepEqual(v, h.lastSeen)) {
		h.acc = h.combine(h.acc, v)
		h.lastSeen, h.hasLastSeen = v, true
	}
	return h.acc, nil
}

// OnValueChangeRequested implements miniac.Handler by rejecting every request.
func (h *Accumulating[T]) OnValueChangeRequested(item *miniac.Item[T], value T) error {
	return errors.WrapInvalid(errors.ErrReadOnlyDataItem, "Accumulating", "OnValueChangeRequested")
}

// OnSaveState implements miniac.Handler, persisting the running total under
// "value" and the last-seen source value under "source" so OnActivate can
// resume accumulation exactly where it left off.
func (h *Accumulating[T]) OnSaveState(item *miniac.Item[T], out miniac.Bundle) {
	if h.codec == nil {
		return
	}
	if text, err := h.codec.Forward(h.acc); err == nil {
		out["value"] = text
	}
	if h.hasLastSeen {
		if text, err := h.codec.Forward(h.lastSeen); err == nil {
			out["source"] = text
		}
	}
}

// OnDeactivate implements miniac.Handler with a no-op.
func (h *Accumulating[T]) OnDeactivate(item *miniac.Item[T]) {}
