package dataitems

import (
	"time"

	"github.com/gboxsw/miniac"
	"github.com/gboxsw/miniac/errors"
)

// MinuteClock is a dependency-free, read-only item whose value is the
// current wall-clock time truncated to the minute. It resynchronizes itself
// once at the top of every minute, so anything depending on it sees exactly
// one change per minute regardless of how often the rest of the graph runs.
type MinuteClock struct {
	cancel miniac.Cancellable
}

// NewMinuteClock constructs a MinuteClock handler.
func NewMinuteClock() *MinuteClock { return &MinuteClock{} }

// OnActivate implements miniac.Handler.
func (h *MinuteClock) OnActivate(item *miniac.Item[time.Time], saved miniac.Bundle) error {
	h.cancel = item.ScheduleRepeating(untilNextMinute(), time.Minute, item.Invalidate)
	return nil
}

// OnSynchronizeValue implements miniac.Handler.
func (h *MinuteClock) OnSynchronizeValue(item *miniac.Item[time.Time]) (time.Time, error) {
	return time.Now().Truncate(time.Minute), nil
}

// OnValueChangeRequested implements miniac.Handler by rejecting every request.
func (h *MinuteClock) OnValueChangeRequested(item *miniac.Item[time.Time], value time.Time) error {
	return errors.WrapInvalid(errors.ErrReadOnlyDataItem, "MinuteClock", "OnValueChangeRequested")
}

// OnSaveState implements miniac.Handler with a no-op; the clock value is derived, not stored.
func (h *MinuteClock) OnSaveState(item *miniac.Item[time.Time], out miniac.Bundle) {}

// OnDeactivate implements miniac.Handler, cancelling the per-minute tick.
func (h *MinuteClock) OnDeactivate(item *miniac.Item[time.Time]) {
	if h.cancel != nil {
		h.cancel.Cancel()
	}
}

func untilNextMinute() time.Duration {
	now := time.Now()
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now)
}
