package miniac

// Subscription is a handle returned by Application.Subscribe. Cancel stops
// further delivery and, if this was the filter's last subscriber, tells
// every gateway whose filter set matched it to stop routing the filter.
type Subscription struct {
	app    *Application
	entry  *subscriptionEntry
	global bool
}

// Filter returns the topic filter this subscription was registered with.
func (s *Subscription) Filter() string { return s.entry.filter }

// Cancel withdraws the subscription. Safe to call more than once and from
// any thread: like Subscribe, it queues a subscription-change action rather
// than touching the registry itself, which only the dispatch thread ever
// mutates.
func (s *Subscription) Cancel() {
	s.app.unsubscribe(s)
}

// subscriptionEntry is the dispatch-thread-only bookkeeping record behind a
// Subscription. head is the gateway id the filter targets, or "+"/"#" for a
// filter that applies across every attached gateway; local is filter with
// head stripped off, the form every Gateway callback and this entry's own
// tf operate on. cancelled guards Cancel against running twice, since the
// same Subscription may be enqueued for removal from more than one
// goroutine before the dispatch thread gets to either.
type subscriptionEntry struct {
	filter    string
	head      string
	local     string
	tf        *TopicFilter
	listener  MessageListener
	priority  int
	cancelled bool
}

// wildcardFilterEntry groups every subscription registered against the same
// wildcard filter, so a match test parses the filter once regardless of how
// many listeners are attached to it.
type wildcardFilterEntry struct {
	filter  *TopicFilter
	entries []*subscriptionEntry
}

// addEntry files e into simple or wildcard depending on whether its
// localized filter contains a wildcard level, returning whether this was
// the filter's first subscriber. Shared by gatewayRegistration and
// Application's global filter maps, which differ only in which pair of maps
// they own.
func addEntry(simple map[string][]*subscriptionEntry, wildcard map[string]*wildcardFilterEntry, e *subscriptionEntry) (fresh bool) {
	if e.tf.IsSimple() {
		list, exists := simple[e.local]
		simple[e.local] = append(list, e)
		return !exists
	}
	w, exists := wildcard[e.local]
	if !exists {
		w = &wildcardFilterEntry{filter: e.tf}
		wildcard[e.local] = w
	}
	w.entries = append(w.entries, e)
	return !exists
}

// removeEntry undoes addEntry, returning whether the filter has no
// subscribers left.
func removeEntry(simple map[string][]*subscriptionEntry, wildcard map[string]*wildcardFilterEntry, e *subscriptionEntry) (empty bool) {
	if e.tf.IsSimple() {
		list := simple[e.local]
		for i, x := range list {
			if x == e {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(simple, e.local)
			return true
		}
		simple[e.local] = list
		return false
	}
	w, exists := wildcard[e.local]
	if !exists {
		return false
	}
	for i, x := range w.entries {
		if x == e {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			break
		}
	}
	if len(w.entries) == 0 {
		delete(wildcard, e.local)
		return true
	}
	return false
}

// collectMatches appends every entry in simple or wildcard whose filter
// matches topic to dst.
func collectMatches(simple map[string][]*subscriptionEntry, wildcard map[string]*wildcardFilterEntry, topic string, levels []string, dst []*subscriptionEntry) []*subscriptionEntry {
	dst = append(dst, simple[topic]...)
	for _, w := range wildcard {
		if w.filter.Match(levels) {
			dst = append(dst, w.entries...)
		}
	}
	return dst
}

// filterSubscriberCount reports how many subscriptions are currently filed
// under e's localized filter, for metrics reporting.
func filterSubscriberCount(simple map[string][]*subscriptionEntry, wildcard map[string]*wildcardFilterEntry, e *subscriptionEntry) int {
	if e.tf.IsSimple() {
		return len(simple[e.local])
	}
	if w, ok := wildcard[e.local]; ok {
		return len(w.entries)
	}
	return 0
}
