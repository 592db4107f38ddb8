package miniac

import (
	"fmt"
	"reflect"

	"github.com/gboxsw/miniac/errors"
)

// DataItemState is the lifecycle state of a DataItem.
type DataItemState int

const (
	DataItemCreated DataItemState = iota
	DataItemActivating
	DataItemActive
	DataItemDeactivated
)

func (s DataItemState) String() string {
	switch s {
	case DataItemCreated:
		return "created"
	case DataItemActivating:
		return "activating"
	case DataItemActive:
		return "active"
	case DataItemDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

// Handler implements the behavior of a typed data item. Every method runs
// only on the dispatch thread.
type Handler[T any] interface {
	// OnActivate runs once, after the item is registered with its
	// application and before it is first synchronized. It may call
	// item.SetDependencies to declare the upstream items this item's value
	// is computed from.
	OnActivate(item *Item[T], saved Bundle) error
	// OnSynchronizeValue recomputes the item's value from its current
	// dependencies. It should be a pure function of those dependencies'
	// current values; it must not itself call SetDependencies.
	OnSynchronizeValue(item *Item[T]) (T, error)
	// OnValueChangeRequested handles a value change requested via
	// Item.RequestChange. A read-only item's handler should return
	// errors.ErrReadOnlyDataItem, though Application rejects such requests
	// before they reach the handler.
	OnValueChangeRequested(item *Item[T], value T) error
	// OnSaveState writes any state that should survive a restart into out.
	OnSaveState(item *Item[T], out Bundle)
	// OnDeactivate releases resources the handler acquired in OnActivate.
	OnDeactivate(item *Item[T])
}

// NopHandler can be embedded by a Handler implementation to inherit no-op
// bodies for the methods it does not need to override.
type NopHandler[T any] struct{}

func (NopHandler[T]) OnActivate(*Item[T], Bundle) error                { return nil }
func (NopHandler[T]) OnValueChangeRequested(*Item[T], T) error         { return errors.ErrReadOnlyDataItem }
func (NopHandler[T]) OnSaveState(*Item[T], Bundle)                     {}
func (NopHandler[T]) OnDeactivate(*Item[T])                            {}

// DataItem is the type-erased view of an observable value used wherever the
// dispatch engine or a gateway needs to hold data items of differing T
// together: dependency lists, the application's item registry, a gateway's
// exposed item set. Concrete access is through the generic Item[T] returned
// by AddDataItem and GetDataItem.
type DataItem interface {
	// ID returns the item's fully-qualified identifier.
	ID() string
	// ReadOnly reports whether RequestChange always fails for this item.
	ReadOnly() bool
	// State returns the item's current lifecycle state.
	State() DataItemState
	// ValueType returns the reflect.Type of the item's value, fixed at
	// construction so GetDataItem[T] can reject a type mismatch without a
	// panic.
	ValueType() reflect.Type

	setDependencies(deps []DataItem) error
	addDependant(d DataItem)
	activate(app *Application, saved Bundle) error
	invalidate()
	doSynchronize()
	doRequestChange(value any) error
	saveState(out Bundle)
	deactivate()
}

// Item is the concrete, type-safe handle to a data item's value, returned by
// AddDataItem and looked up again by GetDataItem[T]. It implements DataItem.
type Item[T any] struct {
	id       string
	app      *Application
	readOnly bool
	handler  Handler[T]

	// owner and localID are set by AddDataItem when the item is hosted by a
	// DataGateway: owner is nil for an item with no owning gateway.
	owner   *DataGateway
	localID string

	state    DataItemState
	hasValue bool
	value    T

	deps       []DataItem
	dependants []DataItem

	syncQueued bool
}

// newItem constructs an unactivated item. Called only from Application.AddDataItem.
func newItem[T any](id string, handler Handler[T], readOnly bool) *Item[T] {
	return &Item[T]{id: id, handler: handler, readOnly: readOnly, state: DataItemCreated}
}

// ID implements DataItem.
func (it *Item[T]) ID() string { return it.id }

// ReadOnly implements DataItem.
func (it *Item[T]) ReadOnly() bool { return it.readOnly }

// State implements DataItem.
func (it *Item[T]) State() DataItemState { return it.state }

// ValueType implements DataItem.
func (it *Item[T]) ValueType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Value returns the item's current value and whether it has ever been
// successfully synchronized. Call only on the dispatch thread.
func (it *Item[T]) Value() (T, bool) { return it.value, it.hasValue }

// Dependencies returns the item's declared upstream dependencies.
func (it *Item[T]) Dependencies() []DataItem { return it.deps }

// Invalidate marks the item as needing resynchronization. A handler calls
// this itself after accepting a value change, or from any trigger it wires
// up on its own (a timer, an inbound message) to request that
// OnSynchronizeValue run again.
func (it *Item[T]) Invalidate() { it.invalidate() }

// Schedule queues fn to run once on the dispatch thread after delay, via
// the item's owning application.
func (it *Item[T]) Schedule(delay monotonic, fn func()) Cancellable {
	return it.app.Schedule(delay, fn)
}

// ScheduleRepeating queues fn to run on the dispatch thread after
// initialDelay and then every period, via the item's owning application.
func (it *Item[T]) ScheduleRepeating(initialDelay, period monotonic, fn func()) Cancellable {
	return it.app.ScheduleRepeating(initialDelay, period, fn)
}

// Publish publishes msg through the item's owning application.
func (it *Item[T]) Publish(msg *Message) error {
	return it.app.Publish(msg)
}

// Subscribe subscribes listener to filter through the item's owning application.
func (it *Item[T]) Subscribe(filter string, listener MessageListener) (*Subscription, error) {
	return it.app.Subscribe(filter, listener)
}

// SetDependencies declares the items this item's value is computed from. It
// may only be called from within Handler.OnActivate; calling it at any other
// time returns errors.ErrSetDependenciesOutsideActivate. Declaring a
// dependency that would create a cycle returns errors.ErrDependencyCycle and
// leaves the dependency set unchanged.
func (it *Item[T]) SetDependencies(deps ...DataItem) error {
	if it.state != DataItemActivating {
		return errors.WrapInvalid(errors.ErrSetDependenciesOutsideActivate, "DataItem", "SetDependencies")
	}
	return it.setDependencies(deps)
}

func (it *Item[T]) setDependencies(deps []DataItem) error {
	for _, d := range deps {
		if d == it {
			return errors.WrapInvalid(errors.ErrSelfDependency, "DataItem", "SetDependencies")
		}
	}
	if wouldCycle(it, deps) {
		return errors.WrapInvalid(errors.ErrDependencyCycle, "DataItem", "SetDependencies")
	}
	it.deps = append([]DataItem{}, deps...)
	for _, d := range deps {
		d.addDependant(it)
	}
	return nil
}

func (it *Item[T]) addDependant(d DataItem) {
	it.dependants = append(it.dependants, d)
}

// wouldCycle reports whether making start depend on every item in newDeps
// (transitively) would create a cycle back to start.
func wouldCycle(start DataItem, newDeps []DataItem) bool {
	visited := map[DataItem]bool{}
	var visit func(d DataItem) bool
	visit = func(d DataItem) bool {
		if d == start {
			return true
		}
		if visited[d] {
			return false
		}
		visited[d] = true
		if item, ok := d.(interface{ Dependencies() []DataItem }); ok {
			for _, dep := range item.Dependencies() {
				if visit(dep) {
					return true
				}
			}
		}
		return false
	}
	for _, d := range newDeps {
		if visit(d) {
			return true
		}
	}
	return false
}

func (it *Item[T]) activate(app *Application, saved Bundle) error {
	it.app = app
	it.state = DataItemActivating
	if err := it.handler.OnActivate(it, saved); err != nil {
		it.state = DataItemCreated
		return errors.WrapFatal(err, "DataItem", "OnActivate")
	}
	it.state = DataItemActive
	it.doSynchronize()
	return nil
}

// invalidate queues the item itself for resynchronization, idempotently:
// an item already queued for resynchronization is left alone rather than
// queued twice. Dependants are reached later, by doSynchronize, only if the
// item's value changes.
func (it *Item[T]) invalidate() {
	if it.state != DataItemActive || it.syncQueued {
		return
	}
	it.syncQueued = true
	it.app.enqueueSync(it)
}

// doSynchronize recomputes the item's value, notifies its owning data
// gateway if the value changed, and in that case also invalidates every
// direct dependant.
func (it *Item[T]) doSynchronize() {
	it.syncQueued = false
	if it.state != DataItemActive && it.state != DataItemActivating {
		return
	}

	newValue, err := it.handler.OnSynchronizeValue(it)
	if err != nil {
		it.app.reportSyncFault(it.id, err)
		return
	}

	changed := !it.hasValue || !reflect.DeepEqual(newValue, it.value)
	it.value = newValue
	it.hasValue = true

	if changed {
		if it.owner != nil {
			it.owner.notifyValueChanged(it.localID)
		}
		for _, dependant := range it.dependants {
			dependant.invalidate()
		}
	}
}

// RequestChange asks the item's handler to accept a new value. Read-only
// items reject every request with errors.ErrReadOnlyDataItem without
// involving the handler. The request is queued as an action and processed
// on the dispatch thread; this method itself does not block for that
// processing and returns any synchronous validation error only.
func (it *Item[T]) RequestChange(value T) error {
	if it.readOnly {
		return errors.WrapInvalid(errors.ErrReadOnlyDataItem, "DataItem", "RequestChange")
	}
	it.app.enqueueAction(func() {
		it.doRequestChangeTyped(value)
	})
	return nil
}

func (it *Item[T]) doRequestChangeTyped(value T) {
	if it.state != DataItemActive {
		return
	}
	if err := it.handler.OnValueChangeRequested(it, value); err != nil {
		it.app.reportSyncFault(it.id, err)
	}
}

func (it *Item[T]) doRequestChange(value any) error {
	v, ok := value.(T)
	if !ok {
		return errors.WrapInvalid(errors.ErrTypeMismatch, "DataItem", "RequestChange")
	}
	return it.RequestChange(v)
}

func (it *Item[T]) saveState(out Bundle) {
	it.handler.OnSaveState(it, out)
}

func (it *Item[T]) deactivate() {
	if it.state != DataItemActive && it.state != DataItemActivating {
		return
	}
	it.handler.OnDeactivate(it)
	it.state = DataItemDeactivated
}

// String implements fmt.Stringer for debugging and log output.
func (it *Item[T]) String() string {
	return fmt.Sprintf("DataItem[%s]=%v", it.id, it.value)
}
