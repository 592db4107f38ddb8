package miniac

// Gateway connects the dispatch engine to an external messaging transport
// (a broker connection, a polled HTTP endpoint, an in-process echo bus).
// Methods must not block; long running I/O belongs on a gateway-owned
// goroutine that feeds results back through Application.Enqueue. OnStart
// runs on the goroutine that calls Application.Start, before the dispatch
// thread exists; IsValidTopicName runs on whichever goroutine calls
// Application.Publish; every other method runs only on the dispatch thread.
type Gateway interface {
	// OnStart is called once when the gateway is launched. It may return a
	// ClassFatal error (see package errors) to abort application startup.
	OnStart(ctx *GatewayContext) error
	// OnStop is called once during application shutdown, in reverse
	// attachment order, after OnStart succeeded. It must not block.
	OnStop()
	// OnAddTopicFilter is called when the first subscriber for filter
	// attaches. The gateway should begin routing matching messages to
	// ctx.Deliver.
	OnAddTopicFilter(filter string) error
	// OnRemoveTopicFilter is called when the last subscriber for filter
	// detaches.
	OnRemoveTopicFilter(filter string)
	// OnPublish is called for every message published through the gateway,
	// whether or not the gateway itself has any subscribers.
	OnPublish(msg *Message) error
	// IsValidTopicName reports whether topic is routable by this gateway.
	// The default embeddable BaseGateway accepts everything; a NATS-backed
	// gateway might reject topics containing characters NATS subjects
	// disallow.
	IsValidTopicName(topic string) bool
}

// StatefulGateway is implemented by gateways that persist state across
// restarts via PersistentStorage.
type StatefulGateway interface {
	Gateway
	// OnSaveState writes the gateway's current state into out. Called
	// before OnStop during an orderly shutdown and periodically if the
	// application is configured with a save interval.
	OnSaveState(out Bundle)
}

// BaseGateway is embeddable by gateway implementations that do not persist
// state and accept any topic name; it satisfies Gateway with no-op bodies
// for the methods a simple gateway does not need to override.
type BaseGateway struct{}

// OnStart implements Gateway with a no-op.
func (BaseGateway) OnStart(*GatewayContext) error { return nil }

// OnStop implements Gateway with a no-op.
func (BaseGateway) OnStop() {}

// OnAddTopicFilter implements Gateway with a no-op.
func (BaseGateway) OnAddTopicFilter(string) error { return nil }

// OnRemoveTopicFilter implements Gateway with a no-op.
func (BaseGateway) OnRemoveTopicFilter(string) {}

// OnPublish implements Gateway with a no-op: a published message is simply
// dropped unless the embedding gateway overrides this method.
func (BaseGateway) OnPublish(*Message) error { return nil }

// IsValidTopicName implements Gateway by accepting every topic name.
func (BaseGateway) IsValidTopicName(string) bool { return true }

// GatewayContext is handed to a gateway at OnStart and retained for the
// gateway's lifetime. It is the gateway's only way to reach back into the
// dispatch engine: delivering inbound messages and scheduling its own
// housekeeping actions.
type GatewayContext struct {
	app *Application
	id  string
}

// ID returns the gateway's attachment ID.
func (c *GatewayContext) ID() string { return c.id }

// Deliver routes an inbound message to every subscription whose filter
// matches msg.Topic(), as if the message had been published by this gateway.
// Safe to call from any goroutine: delivery itself always runs on the
// dispatch thread, so a gateway's transport goroutine can call Deliver
// directly as messages arrive.
func (c *GatewayContext) Deliver(msg *Message) {
	c.app.Enqueue(func() { c.app.dispatchInbound(c.id, msg) })
}

// Schedule queues fn to run on the dispatch thread after delay. See
// Application.Schedule for semantics.
func (c *GatewayContext) Schedule(delay monotonic, fn func()) Cancellable {
	return c.app.Schedule(delay, fn)
}

// SavedState returns the bundle restored for this gateway at startup, or an
// empty bundle if none was persisted.
func (c *GatewayContext) SavedState() Bundle {
	return c.app.savedGatewayState(c.id)
}

// RequestExit asks the dispatch loop to stop after the action currently
// running finishes, as if Application.Stop had been called. Intended for
// the built-in system gateway, but available to any gateway that wants to
// trigger a shutdown from a message it received.
func (c *GatewayContext) RequestExit() {
	c.app.requestExit()
}

// RequestSave immediately saves every stateful gateway's and data item's
// state and publishes $SYS/state-saved once it completes.
func (c *GatewayContext) RequestSave() {
	c.app.requestSave()
}

// gatewayRegistration tracks a single attached gateway and its derived
// subscription bookkeeping.
type gatewayRegistration struct {
	id      string
	gateway Gateway
	ctx     *GatewayContext
	started bool

	// simpleFilters and wildcardFilters partition this gateway's active
	// subscriptions, keyed by localized filter, so dispatchInbound can test
	// a concrete topic against only the filters that could plausibly match
	// it: an exact map lookup for filters with no wildcard level, a linear
	// scan of the (usually much smaller) set of filters that contain one.
	simpleFilters   map[string][]*subscriptionEntry
	wildcardFilters map[string]*wildcardFilterEntry
}

func newGatewayRegistration(id string, g Gateway, ctx *GatewayContext) *gatewayRegistration {
	return &gatewayRegistration{
		id:              id,
		gateway:         g,
		ctx:             ctx,
		simpleFilters:   make(map[string][]*subscriptionEntry),
		wildcardFilters: make(map[string]*wildcardFilterEntry),
	}
}

// addFilter files e under this gateway's localized filter, calling
// OnAddTopicFilter the first time that filter becomes active.
func (g *gatewayRegistration) addFilter(e *subscriptionEntry) error {
	if addEntry(g.simpleFilters, g.wildcardFilters, e) {
		return g.gateway.OnAddTopicFilter(e.local)
	}
	return nil
}

// removeFilter undoes addFilter, calling OnRemoveTopicFilter once the
// localized filter has no subscribers left.
func (g *gatewayRegistration) removeFilter(e *subscriptionEntry) {
	if removeEntry(g.simpleFilters, g.wildcardFilters, e) {
		g.gateway.OnRemoveTopicFilter(e.local)
	}
}

// matchesInto appends every subscription entry whose filter matches the
// localized topic to dst.
func (g *gatewayRegistration) matchesInto(topic string, levels []string, dst []*subscriptionEntry) []*subscriptionEntry {
	return collectMatches(g.simpleFilters, g.wildcardFilters, topic, levels, dst)
}
