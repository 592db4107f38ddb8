package dataitems

import (
	"github.com/gboxsw/miniac"
	"github.com/gboxsw/miniac/converters"
)

// Msg binds a data item's value to the messages flowing over a single
// topic: every inbound message matching the topic is decoded with codec
// and becomes the item's new value, and — if writable — every accepted
// value change is encoded and published back to the same topic.
type Msg[T any] struct {
	topic    string
	codec    converters.Converter[T, string]
	writable bool

	item       *miniac.Item[T]
	sub        *miniac.Subscription
	current    T
	hasCurrent bool
}

// NewMsg constructs a Msg handler bound to topic. If writable is false,
// accepted values are not published back to the topic; an external
// RequestChange is still applied to the item, exactly as an inbound
// message is.
func NewMsg[T any](topic string, codec converters.Converter[T, string], writable bool) *Msg[T] {
	return &Msg[T]{topic: topic, codec: codec, writable: writable}
}

// OnActivate implements miniac.Handler.
func (h *Msg[T]) OnActivate(item *miniac.Item[T], saved miniac.Bundle) error {
	h.item = item
	sub, err := item.Subscribe(h.topic, miniac.MessageListenerFunc(h.onMessage))
	if err != nil {
		return err
	}
	h.sub = sub
	return nil
}

// onMessage decodes an inbound message and routes it through the item's own
// RequestChange, the same path any other caller uses to change the item's
// value; it never mutates h.current directly.
func (h *Msg[T]) onMessage(msg *miniac.Message) {
	v, err := h.codec.Backward(msg.Text())
	if err != nil {
		return
	}
	_ = h.item.RequestChange(v)
}

// OnSynchronizeValue implements miniac.Handler.
func (h *Msg[T]) OnSynchronizeValue(item *miniac.Item[T]) (T, error) {
	return h.current, nil
}

// OnValueChangeRequested implements miniac.Handler. It always accepts the
// new value, since both an inbound message and a writable item's external
// RequestChange reach this method the same way; only when the item is
// writable does it also publish the encoded value back to the bound topic.
// A non-writable Msg must be added with AddDataItem's readOnly argument set
// to false, so inbound messages can still update it; OnValueChangeRequested
// cannot tell those apart from external requests, so it does not reject
// either.
func (h *Msg[T]) OnValueChangeRequested(item *miniac.Item[T], value T) error {
	if h.writable {
		text, err := h.codec.Forward(value)
		if err != nil {
			return err
		}
		if err := item.Publish(miniac.NewTextMessage(h.topic, text)); err != nil {
			return err
		}
	}
	h.current, h.hasCurrent = value, true
	item.Invalidate()
	return nil
}

// OnSaveState implements miniac.Handler with a no-op; the value rebuilds from the next inbound message.
func (h *Msg[T]) OnSaveState(item *miniac.Item[T], out miniac.Bundle) {}

// OnDeactivate implements miniac.Handler, cancelling the topic subscription.
func (h *Msg[T]) OnDeactivate(item *miniac.Item[T]) {
	if h.sub != nil {
		h.sub.Cancel()
	}
}
