package miniac

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gboxsw/miniac/errors"
	"github.com/gboxsw/miniac/metric"
)

// monotonic is a duration measured from the moment the application was started.
type monotonic = time.Duration

// Application is the single-threaded dispatch engine: it owns a FIFO action
// queue and a scheduled-action heap, drained one action at a time on a
// single dedicated goroutine. Every gateway callback, data item
// synchronization, and scheduled timer runs on that goroutine; nothing else
// in this package touches shared state concurrently with it.
//
// Setup methods (AddGateway, AddDataItem) are meant to be called either
// before Start or from within a callback already running on the dispatch
// goroutine. Publish, Subscribe, a Subscription's Cancel, Schedule and its
// variants, Item.RequestChange, Enqueue, GetProperty/SetProperty, and
// GetKeyValue/SetKeyValue are safe to call from any goroutine: each either
// only mutates the queue/scheduled heap under queueMu, or only mutates the
// property maps under propMu. Every other mutation (gateway filter sets,
// the subscription registry, data item state) happens only as the body of
// an action run on the dispatch thread. The one exception to "gateway
// filter sets only change on the dispatch thread" is that Subscribe and
// AddGateway both read app.gateways without a lock; this is safe only
// because, by convention, every gateway is attached before Start or from
// within an action already running on the dispatch thread.
type Application struct {
	logger  *slog.Logger
	metrics *metric.Metrics
	storage PersistentStorage

	saveInterval time.Duration
	startedAt    time.Time
	startedFlag  bool

	queueMu              sync.Mutex
	queue                []action
	scheduled            scheduledQueue
	nextSeq              uint64
	actionsEnqueuedFIFO  uint64
	actionsProcessedFIFO uint64

	wakeCh chan struct{}

	gateways     map[string]*gatewayRegistration
	gatewayOrder []string

	dataItems     map[string]DataItem
	dataItemOrder []string

	// globalSimple and globalWildcard hold subscriptions whose filter head
	// is "+" or "#": these apply across every attached gateway rather than
	// being filed under any single gatewayRegistration.
	globalSimple   map[string][]*subscriptionEntry
	globalWildcard map[string]*wildcardFilterEntry

	propMu     sync.RWMutex
	properties map[string]string
	keyValues  map[string]any

	shutdownHooks []func()

	onDispatchThread bool

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// Module bundles a set of gateways, data items, and subscriptions that are
// configured together. AddModule exists so a reusable piece of application
// wiring can be handed to multiple Applications without repeating its
// AddGateway/AddDataItem/Subscribe calls at every call site.
type Module interface {
	Configure(app *Application) error
}

// Option configures an Application at construction time.
type Option func(*Application)

// WithStorage overrides the default in-memory PersistentStorage.
func WithStorage(s PersistentStorage) Option { return func(a *Application) { a.storage = s } }

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option { return func(a *Application) { a.logger = l } }

// WithMetrics attaches a *metric.Metrics. A nil value (the default) disables
// metrics recording without any conditional elsewhere in the engine.
func WithMetrics(m *metric.Metrics) Option { return func(a *Application) { a.metrics = m } }

// WithSaveInterval enables periodic persistence of gateway and data item
// state every d, in addition to the save performed during an orderly Stop.
func WithSaveInterval(d time.Duration) Option { return func(a *Application) { a.saveInterval = d } }

// NewApplication constructs an Application ready to accept AddGateway,
// Subscribe, and AddDataItem calls. Start must be called before any of its
// queued work runs.
func NewApplication(opts ...Option) *Application {
	app := &Application{
		gateways:       make(map[string]*gatewayRegistration),
		dataItems:      make(map[string]DataItem),
		globalSimple:   make(map[string][]*subscriptionEntry),
		globalWildcard: make(map[string]*wildcardFilterEntry),
		properties:     make(map[string]string),
		keyValues:      make(map[string]any),
		wakeCh:         make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		stoppedCh:      make(chan struct{}),
		storage:        newMemoryStorage(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(app)
	}

	app.attachBuiltinGateway(SystemGatewayID, newSystemGateway())
	app.attachBuiltinGateway(MailboxGatewayID, newMailboxGateway())

	return app
}

// attachBuiltinGateway wires a reserved, '$'-prefixed gateway in directly,
// bypassing AddGateway's isValidGatewayID check (reserved IDs are not
// spellable by user code, by construction: isValidGatewayID requires a
// leading letter).
func (app *Application) attachBuiltinGateway(id string, g Gateway) {
	ctx := &GatewayContext{app: app, id: id}
	app.gateways[id] = newGatewayRegistration(id, g, ctx)
	app.gatewayOrder = append(app.gatewayOrder, id)
}

func (app *Application) elapsed() monotonic {
	if app.startedAt.IsZero() {
		return 0
	}
	return monotonic(time.Since(app.startedAt))
}

// --- gateway registry -------------------------------------------------

// AddGateway attaches a gateway under id. Gateways are started, in the
// order they were added, by Start, and stopped in reverse order by Stop.
func (app *Application) AddGateway(id string, g Gateway) error {
	if !isValidGatewayID(id) {
		return errors.WrapInvalid(errors.ErrInvalidGatewayID, "Application", "AddGateway")
	}
	if _, exists := app.gateways[id]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateGatewayID, "Application", "AddGateway")
	}
	ctx := &GatewayContext{app: app, id: id}
	app.gateways[id] = newGatewayRegistration(id, g, ctx)
	app.gatewayOrder = append(app.gatewayOrder, id)
	return nil
}

// AddModule runs m.Configure against app, so a reusable bundle of gateways,
// data items, and subscriptions can be wired in with a single call.
func (app *Application) AddModule(m Module) error {
	return m.Configure(app)
}

// AddShutdownHook registers fn to run once, on the dispatch thread, during
// an orderly Stop, after gateways and data items are still active but
// before state is saved.
func (app *Application) AddShutdownHook(fn func()) {
	app.shutdownHooks = append(app.shutdownHooks, fn)
}

// IsLaunched reports whether Start has completed successfully, that is,
// whether every attached gateway's OnStart returned without error.
func (app *Application) IsLaunched() bool {
	return app.startedFlag
}

// IsInApplicationThread reports whether the calling goroutine is the
// dispatch thread. It is a best-effort diagnostic aid, not an enforcement
// mechanism: Go has no portable way to identify the current goroutine, so
// this returns a flag runAction sets while an action runs. The flag is not
// goroutine-local: a call from another goroutine while an action is running
// also reports true.
func (app *Application) IsInApplicationThread() bool {
	return app.onDispatchThread
}

// CreateMailboxTopic reserves and returns a unique, ephemeral reply topic
// under the built-in "$MAILBOX" gateway.
func (app *Application) CreateMailboxTopic() string {
	return app.ReserveMailboxTopic()
}

// Gateway returns the gateway attached under id, if any.
func (app *Application) Gateway(id string) (Gateway, bool) {
	reg, ok := app.gateways[id]
	if !ok {
		return nil, false
	}
	return reg.gateway, true
}

func (app *Application) savedGatewayState(id string) Bundle {
	if app.storage == nil {
		return NewBundle()
	}
	b, err := app.storage.Load(gatewayStorageKey(id))
	if err != nil || b == nil {
		return NewBundle()
	}
	return b
}

// --- publish / subscribe ----------------------------------------------

// Publish validates msg's topic, splits it into the gateway id naming its
// head and the localized topic that gateway actually sees, and queues a
// Publish action bound to exactly that one gateway's OnPublish. It returns
// immediately; delivery happens when the action reaches the front of the
// dispatch queue, and is entirely up to that gateway: OnPublish decides
// whether and how (typically via GatewayContext.Deliver) the message
// reaches any subscriber.
func (app *Application) Publish(msg *Message) error {
	if !isValidTopicName(msg.topic) {
		return errors.WrapInvalid(errors.ErrInvalidTopic, "Application", "Publish")
	}
	head, local, ok := splitTopicHead(msg.topic)
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidTopic, "Application", "Publish")
	}
	reg, known := app.gateways[head]
	if !known {
		return errors.WrapInvalid(errors.ErrUnknownGateway, "Application", "Publish")
	}
	if !reg.gateway.IsValidTopicName(local) {
		return errors.WrapInvalid(errors.ErrInvalidTopic, "Application", "Publish")
	}
	localMsg := NewMessage(local, msg.payload)
	app.enqueueAction(func() { app.doPublish(head, localMsg) })
	return nil
}

func (app *Application) doPublish(gatewayID string, msg *Message) {
	reg, ok := app.gateways[gatewayID]
	if !ok {
		return
	}
	if err := reg.gateway.OnPublish(msg); err != nil {
		app.logger.Warn("gateway rejected outbound message", "gateway", gatewayID, "topic", msg.topic, "error", err)
	}
	app.metrics.RecordPublish(gatewayID)
}

// dispatchInbound delivers a message gatewayID received from its transport
// to every subscription whose filter matches it, across that gateway's own
// filter sets and every global ("+"/"#"-headed) filter, higher-priority
// subscribers first. It does not re-publish to other gateways.
func (app *Application) dispatchInbound(gatewayID string, msg *Message) {
	reg, ok := app.gateways[gatewayID]
	if !ok {
		return
	}
	app.metrics.RecordReceive(gatewayID)

	levels := parseTopicLevels(msg.topic)
	var matches []*subscriptionEntry
	matches = reg.matchesInto(msg.topic, levels, matches)
	matches = collectMatches(app.globalSimple, app.globalWildcard, msg.topic, levels, matches)
	if len(matches) == 0 {
		return
	}
	if len(matches) > 1 {
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].priority > matches[j].priority })
	}

	delivered := NewMessage(gatewayID+"/"+msg.topic, msg.payload)
	for _, e := range matches {
		e.listener.OnMessage(delivered)
	}
}

// Subscribe registers listener to receive every message whose topic matches
// filter, at priority 0. See SubscribeWithPriority.
func (app *Application) Subscribe(filter string, listener MessageListener) (*Subscription, error) {
	return app.SubscribeWithPriority(filter, listener, 0)
}

// SubscribeWithPriority registers listener to receive every message whose
// topic matches filter. filter's head (up to the first '/') names the
// gateway it targets, or is "+"/"#" for a filter applied across every
// attached gateway; a bare "#" with no slash at all is the special global,
// multi-level-only filter. When two or more subscriptions match one
// delivered message, the one registered with the higher priority is
// invoked first. Among equal priorities, subscriptions to the same filter
// are invoked in submission order, a gateway's exact-match filters before
// its wildcard filters, and those before global filters; the relative
// order of two different wildcard filters is not defined.
//
// Safe to call from any goroutine: the actual registration is queued as a
// subscription-change action and applied on the dispatch thread, the only
// thread that ever touches a gateway's filter sets or the global filter
// maps. The returned Subscription is usable immediately; Cancel may be
// called before the registering action has even run.
func (app *Application) SubscribeWithPriority(filter string, listener MessageListener, priority int) (*Subscription, error) {
	if !isValidTopicFilter(filter) {
		return nil, errors.WrapInvalid(errors.ErrInvalidFilter, "Application", "Subscribe")
	}
	head, local, global, err := app.resolveFilterTarget(filter)
	if err != nil {
		return nil, err
	}
	entry := &subscriptionEntry{
		filter:   filter,
		head:     head,
		local:    local,
		tf:       parseTopicFilter(local),
		listener: listener,
		priority: priority,
	}
	app.enqueueAction(func() { app.applySubscribe(entry, global) })
	return &Subscription{app: app, entry: entry, global: global}, nil
}

// resolveFilterTarget splits filter into the gateway id its head names (or
// "+"/"#" for a global filter) and the localized remainder every Gateway
// callback and subscriptionEntry.tf operate on. A bare "#" is the one
// filter shape with no slash that is still valid: the global,
// multi-level-only filter. Any other head must be an attached gateway's id,
// with a non-empty localized remainder.
func (app *Application) resolveFilterTarget(filter string) (head, local string, global bool, err error) {
	if filter == "#" {
		return "", "#", true, nil
	}
	head, rest, hasSlash := splitTopicHead(filter)
	if !hasSlash || rest == "" {
		return "", "", false, errors.WrapInvalid(errors.ErrInvalidFilter, "Application", "Subscribe")
	}
	if head == "+" || head == "#" {
		return head, rest, true, nil
	}
	if _, known := app.gateways[head]; !known {
		return "", "", false, errors.WrapInvalid(errors.ErrUnknownGateway, "Application", "Subscribe")
	}
	return head, rest, false, nil
}

func (app *Application) applySubscribe(entry *subscriptionEntry, global bool) {
	if global {
		if addEntry(app.globalSimple, app.globalWildcard, entry) {
			for _, gwID := range app.gatewayOrder {
				if err := app.gateways[gwID].gateway.OnAddTopicFilter(entry.local); err != nil {
					app.logger.Warn("gateway rejected topic filter", "gateway", gwID, "filter", entry.local, "error", err)
				}
			}
		}
		app.metrics.SetSubscriptionCount(entry.filter, filterSubscriberCount(app.globalSimple, app.globalWildcard, entry))
		return
	}
	reg := app.gateways[entry.head]
	if err := reg.addFilter(entry); err != nil {
		app.logger.Warn("gateway rejected topic filter", "gateway", entry.head, "filter", entry.local, "error", err)
	}
	app.metrics.SetSubscriptionCount(entry.filter, filterSubscriberCount(reg.simpleFilters, reg.wildcardFilters, entry))
}

// unsubscribe queues the subscription-change action that withdraws sub. See
// Subscription.Cancel.
func (app *Application) unsubscribe(sub *Subscription) {
	app.enqueueAction(func() { app.applyUnsubscribe(sub) })
}

func (app *Application) applyUnsubscribe(sub *Subscription) {
	entry := sub.entry
	if entry.cancelled {
		return
	}
	entry.cancelled = true

	if sub.global {
		if removeEntry(app.globalSimple, app.globalWildcard, entry) {
			for _, gwID := range app.gatewayOrder {
				app.gateways[gwID].gateway.OnRemoveTopicFilter(entry.local)
			}
		}
		app.metrics.SetSubscriptionCount(entry.filter, filterSubscriberCount(app.globalSimple, app.globalWildcard, entry))
		return
	}
	reg, ok := app.gateways[entry.head]
	if !ok {
		return
	}
	reg.removeFilter(entry)
	app.metrics.SetSubscriptionCount(entry.filter, filterSubscriberCount(reg.simpleFilters, reg.wildcardFilters, entry))
}

// --- data items ---------------------------------------------------------

// AddDataItem registers a new data item under localID, hosted by the
// DataGateway attached as gatewayID, loads any bundle previously saved for
// it, and activates it. The item's fully-qualified id is
// "gatewayID/localID"; that id is what GetDataItem and a subscriber to the
// gateway's namespace both use to reach it. T is fixed for the lifetime of
// the item and checked again by every later GetDataItem[T] call.
func AddDataItem[T any](app *Application, gatewayID, localID string, handler Handler[T], readOnly bool) (*Item[T], error) {
	if !isValidDataItemLocalID(localID) {
		return nil, errors.WrapInvalid(errors.ErrInvalidDataItemID, "Application", "AddDataItem")
	}
	reg, known := app.gateways[gatewayID]
	if !known {
		return nil, errors.WrapInvalid(errors.ErrUnknownGateway, "Application", "AddDataItem")
	}
	dg, ok := reg.gateway.(*DataGateway)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrNotDataGateway, "Application", "AddDataItem")
	}

	id := gatewayID + "/" + localID
	if _, exists := app.dataItems[id]; exists {
		return nil, errors.WrapInvalid(errors.ErrDuplicateDataItemID, "Application", "AddDataItem")
	}

	item := newItem(id, handler, readOnly)
	item.owner = dg
	item.localID = localID
	app.dataItems[id] = item
	app.dataItemOrder = append(app.dataItemOrder, id)

	var saved Bundle
	if app.storage != nil {
		saved, _ = app.storage.Load(dataItemStorageKey(id))
	}
	if err := item.activate(app, saved); err != nil {
		delete(app.dataItems, id)
		app.dataItemOrder = app.dataItemOrder[:len(app.dataItemOrder)-1]
		return nil, err
	}
	dg.hostItem(item)
	app.metrics.SetDataItemsActive(gatewayID, len(dg.hostedItems()))
	return item, nil
}

// GetDataItem looks up a previously added item by id and asserts its value
// type is T, returning errors.ErrTypeMismatch if it was added with a
// different type.
func GetDataItem[T any](app *Application, id string) (*Item[T], error) {
	raw, ok := app.dataItems[id]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidDataItemID, "Application", "GetDataItem")
	}
	item, ok := raw.(*Item[T])
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrTypeMismatch, "Application", "GetDataItem")
	}
	return item, nil
}

func (app *Application) enqueueSync(item DataItem) {
	app.enqueueAction(func() { item.doSynchronize() })
}

func (app *Application) reportSyncFault(itemID string, err error) {
	app.logger.Warn("data item synchronization fault", "item", itemID, "error", err)
	app.metrics.RecordSyncFault(itemID)
}

// --- property store facade ----------------------------------------------

// GetProperty returns the value stored under key by SetProperty. Safe to
// call from any goroutine: it reads under its own lock rather than through
// the dispatch queue, because the property store is a small side channel for cross-cutting state (feature
// flags, diagnostic toggles) that does not participate in the dispatch
// engine's single-threaded ordering guarantees.
func (app *Application) GetProperty(key string) (string, bool) {
	app.propMu.RLock()
	defer app.propMu.RUnlock()
	v, ok := app.properties[key]
	return v, ok
}

// SetProperty stores value under key. Safe to call from any goroutine.
func (app *Application) SetProperty(key, value string) {
	app.propMu.Lock()
	app.properties[key] = value
	app.propMu.Unlock()
}

// GetKeyValue returns the arbitrarily-typed value stored under key by
// SetKeyValue. Like GetProperty, it is safe to call from any goroutine.
func (app *Application) GetKeyValue(key string) (any, bool) {
	app.propMu.RLock()
	defer app.propMu.RUnlock()
	v, ok := app.keyValues[key]
	return v, ok
}

// SetKeyValue stores value, of any type, under key. Safe to call from any goroutine.
func (app *Application) SetKeyValue(key string, value any) {
	app.propMu.Lock()
	app.keyValues[key] = value
	app.propMu.Unlock()
}

// GetStringKeyValue returns the value under key as a string, or fallback if
// absent or stored under a different type.
func (app *Application) GetStringKeyValue(key, fallback string) string {
	v, ok := app.GetKeyValue(key)
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

// GetIntKeyValue returns the value under key as an int, or fallback if
// absent or stored under a different type.
func (app *Application) GetIntKeyValue(key string, fallback int) int {
	v, ok := app.GetKeyValue(key)
	if !ok {
		return fallback
	}
	i, ok := v.(int)
	if !ok {
		return fallback
	}
	return i
}

// GetBoolKeyValue returns the value under key as a bool, or fallback if
// absent or stored under a different type.
func (app *Application) GetBoolKeyValue(key string, fallback bool) bool {
	v, ok := app.GetKeyValue(key)
	if !ok {
		return fallback
	}
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
}

// --- scheduling -----------------------------------------------------------

// Schedule queues fn to run once on the dispatch thread after delay has
// elapsed. The returned Cancellable withdraws it if it has not yet fired.
func (app *Application) Schedule(delay monotonic, fn func()) Cancellable {
	return app.scheduleAt(app.elapsed()+delay, 0, fn)
}

// ScheduleRepeating queues fn to run on the dispatch thread after
// initialDelay, then again every period until cancelled.
func (app *Application) ScheduleRepeating(initialDelay, period monotonic, fn func()) Cancellable {
	return app.scheduleAt(app.elapsed()+initialDelay, period, fn)
}

// InvokeLater is an alias for Schedule, named to match the publish-family
// scheduling facade (InvokeAtFixedRate, InvokeWithFixedDelay).
func (app *Application) InvokeLater(delay monotonic, fn func()) Cancellable {
	return app.Schedule(delay, fn)
}

// InvokeAtFixedRate is an alias for ScheduleRepeating: fn runs once every
// period regardless of how long a given invocation took.
func (app *Application) InvokeAtFixedRate(initialDelay, period monotonic, fn func()) Cancellable {
	return app.ScheduleRepeating(initialDelay, period, fn)
}

// InvokeWithFixedDelay behaves like InvokeAtFixedRate in this single-threaded
// engine: since fn always runs to completion before the next scheduled
// action is considered, a fixed period between invocations already implies
// a fixed delay between the end of one run and the start of the next.
func (app *Application) InvokeWithFixedDelay(initialDelay, period monotonic, fn func()) Cancellable {
	return app.ScheduleRepeating(initialDelay, period, fn)
}

// PublishLater queues msg to be published after delay has elapsed.
func (app *Application) PublishLater(delay monotonic, msg *Message) Cancellable {
	return app.Schedule(delay, func() { _ = app.Publish(msg) })
}

// PublishAtFixedRate publishes the result of build, called fresh each time,
// once every period, starting after initialDelay.
func (app *Application) PublishAtFixedRate(initialDelay, period monotonic, build func() *Message) Cancellable {
	return app.ScheduleRepeating(initialDelay, period, func() { _ = app.Publish(build()) })
}

// PublishWithFixedDelay is PublishAtFixedRate under this engine's
// single-threaded scheduling semantics; see InvokeWithFixedDelay.
func (app *Application) PublishWithFixedDelay(initialDelay, period monotonic, build func() *Message) Cancellable {
	return app.PublishAtFixedRate(initialDelay, period, build)
}

// scheduleAt queues fn to fire once elapsed() reaches fireAt (and again every
// period thereafter, if period > 0). Safe to call from any goroutine: the
// scheduled heap is guarded by queueMu, the same mutex enqueueAction uses for
// the FIFO queue, per the engine's "one mutex guards both queues" rule.
func (app *Application) scheduleAt(fireAt monotonic, period monotonic, fn func()) Cancellable {
	app.queueMu.Lock()
	app.nextSeq++
	entry := &scheduledEntry{
		fireAt:               fireAt,
		seq:                  app.nextSeq,
		precedingActionCount: app.actionsEnqueuedFIFO,
		action:               fn,
		period:               period,
	}
	heap.Push(&app.scheduled, entry)
	app.queueMu.Unlock()
	app.wake()
	return cancelFunc(func() { entry.cancelled.Store(true) })
}

// --- cross-goroutine entry point ------------------------------------------

// Enqueue submits fn to run on the dispatch thread. It is how code running
// outside the dispatch goroutine (a gateway's transport goroutine, an HTTP
// handler) feeds work back into the engine; Publish, Subscribe, Schedule,
// and Item.RequestChange all funnel through the same queueMu-guarded path.
func (app *Application) Enqueue(fn func()) {
	app.enqueueAction(fn)
}

func (app *Application) enqueueAction(fn action) {
	app.queueMu.Lock()
	app.actionsEnqueuedFIFO++
	app.queue = append(app.queue, fn)
	app.queueMu.Unlock()
	app.wake()
}

func (app *Application) popAction() (action, bool) {
	app.queueMu.Lock()
	defer app.queueMu.Unlock()
	if len(app.queue) == 0 {
		return nil, false
	}
	act := app.queue[0]
	app.queue = app.queue[1:]
	app.actionsProcessedFIFO++
	return act, true
}

func (app *Application) popReadyScheduled() action {
	app.queueMu.Lock()
	defer app.queueMu.Unlock()
	now := app.elapsed()
	for {
		entry := app.scheduled.peek()
		if entry == nil {
			return nil
		}
		if entry.cancelled.Load() {
			heap.Pop(&app.scheduled)
			continue
		}
		if entry.fireAt > now {
			return nil
		}
		if app.actionsProcessedFIFO < entry.precedingActionCount {
			return nil
		}
		heap.Pop(&app.scheduled)
		if entry.period > 0 && !entry.cancelled.Load() {
			// The same entry goes back on the heap, so the Cancellable
			// returned by scheduleAt keeps governing every later firing.
			app.nextSeq++
			entry.fireAt = now + entry.period
			entry.seq = app.nextSeq
			entry.precedingActionCount = app.actionsEnqueuedFIFO
			heap.Push(&app.scheduled, entry)
		}
		return entry.action
	}
}

func (app *Application) wake() {
	select {
	case app.wakeCh <- struct{}{}:
	default:
	}
}

// nextWaitChannel returns a channel that fires when the earliest scheduled
// action becomes due, or nil (which blocks forever in a select) if the
// scheduled heap is empty.
func (app *Application) nextWaitChannel() <-chan time.Time {
	app.queueMu.Lock()
	entry := app.scheduled.peek()
	app.queueMu.Unlock()
	if entry == nil {
		return nil
	}
	d := entry.fireAt - app.elapsed()
	if d < 0 {
		d = 0
	}
	return time.After(d)
}

// queueSizes returns the current FIFO and scheduled queue lengths, for
// metrics reporting, under queueMu.
func (app *Application) queueSizes() (int, int) {
	app.queueMu.Lock()
	defer app.queueMu.Unlock()
	return len(app.queue), len(app.scheduled)
}

// --- lifecycle -------------------------------------------------------------

// Start launches every attached gateway's OnStart, in attachment order, then
// starts the dispatch goroutine. If any gateway's OnStart fails, Start
// returns that error without starting the dispatch goroutine or any
// gateway attached after the failing one.
func (app *Application) Start(ctx context.Context) error {
	app.startedAt = time.Now()
	for _, id := range app.gatewayOrder {
		reg := app.gateways[id]
		if err := reg.gateway.OnStart(reg.ctx); err != nil {
			return errors.WrapFatal(err, "Application", "Start")
		}
		reg.started = true
		app.metrics.SetGatewayStatus(id, 2)
	}
	app.startedFlag = true

	if app.saveInterval > 0 {
		app.ScheduleRepeating(app.saveInterval, app.saveInterval, app.saveAllState)
	}

	app.enqueueAction(func() { app.dispatchInbound(SystemGatewayID, NewMessage("start", nil)) })

	go app.runLoop(ctx)
	return nil
}

// Stop requests an orderly shutdown and blocks until the dispatch goroutine
// has saved state, stopped every gateway in reverse attachment order, and
// deactivated every data item. Safe to call more than once.
func (app *Application) Stop() {
	select {
	case <-app.stopCh:
	default:
		close(app.stopCh)
	}
	<-app.stoppedCh
}

func (app *Application) runLoop(ctx context.Context) {
	defer close(app.stoppedCh)
	for {
		select {
		case <-ctx.Done():
			app.shutdown()
			return
		case <-app.stopCh:
			app.shutdown()
			return
		default:
		}

		if app.metrics != nil {
			queueDepth, scheduledSize := app.queueSizes()
			app.metrics.SetQueueDepth(queueDepth)
			app.metrics.SetScheduledQueueSize(scheduledSize)
		}

		if act := app.popReadyScheduled(); act != nil {
			app.runAction(act)
			continue
		}

		if act, ok := app.popAction(); ok {
			app.runAction(act)
			continue
		}

		select {
		case <-ctx.Done():
			app.shutdown()
			return
		case <-app.stopCh:
			app.shutdown()
			return
		case <-app.wakeCh:
		case <-app.nextWaitChannel():
		}
	}
}

func (app *Application) runAction(act action) {
	start := time.Now()
	app.onDispatchThread = true
	defer func() {
		app.onDispatchThread = false
		if r := recover(); r != nil {
			app.logger.Error("action panicked", "panic", r)
		}
		app.metrics.ObserveActionDuration(time.Since(start).Seconds())
		app.metrics.RecordAction("action")
	}()
	act()
}

func (app *Application) shutdown() {
	for _, hook := range app.shutdownHooks {
		hook()
	}
	app.saveAllState()
	for i := len(app.gatewayOrder) - 1; i >= 0; i-- {
		reg := app.gateways[app.gatewayOrder[i]]
		if reg.started {
			reg.gateway.OnStop()
			app.metrics.SetGatewayStatus(reg.id, 4)
		}
	}
	for _, id := range app.dataItemOrder {
		app.dataItems[id].deactivate()
	}
}

func (app *Application) saveAllState() {
	if app.storage == nil {
		return
	}
	for _, id := range app.gatewayOrder {
		reg := app.gateways[id]
		sg, ok := reg.gateway.(StatefulGateway)
		if !ok {
			continue
		}
		b := NewBundle()
		sg.OnSaveState(b)
		if err := app.storage.Save(gatewayStorageKey(id), b); err != nil {
			app.logger.Warn("failed to save gateway state", "gateway", id, "error", err)
			app.metrics.RecordPersistenceFault("save-gateway")
		}
	}
	// Data items are saved by walking each DataGateway's own hosted-item
	// list rather than the flat app.dataItemOrder, so persistence is routed
	// through gateway ownership the same way notifyValueChanged is.
	for _, id := range app.gatewayOrder {
		dg, ok := app.gateways[id].gateway.(*DataGateway)
		if !ok {
			continue
		}
		for _, item := range dg.hostedItems() {
			b := NewBundle()
			item.saveState(b)
			if err := app.storage.Save(dataItemStorageKey(item.ID()), b); err != nil {
				app.logger.Warn("failed to save data item state", "item", item.ID(), "error", err)
				app.metrics.RecordPersistenceFault("save-dataitem")
			}
		}
	}
	app.dispatchInbound(SystemGatewayID, NewMessage("state-saved", nil))
}

// requestExit asks the dispatch loop to stop once it finishes the action
// currently running, as if Stop had been called. Called by the system
// gateway's OnPublish, which always runs on the dispatch thread, so no
// additional synchronization is needed beyond stopCh's own close-once guard.
func (app *Application) requestExit() {
	select {
	case <-app.stopCh:
	default:
		close(app.stopCh)
	}
}

// requestSave immediately saves every stateful gateway's and data item's
// state and publishes $SYS/state-saved once it completes.
func (app *Application) requestSave() {
	app.saveAllState()
}
