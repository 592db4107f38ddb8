package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gboxsw/miniac/errors"
)

// Registry owns a dedicated Prometheus registry plus the core Metrics
// collectors, and lets gateways register their own additional collectors
// under a stable "gateway.<id>.<name>" key so two gateways never collide.
type Registry struct {
	prom              *prometheus.Registry
	Metrics           *Metrics
	registeredMetrics map[string]prometheus.Collector
	mu                sync.RWMutex
}

// NewRegistry creates a registry with the core Metrics already registered,
// plus standard Go runtime/process collectors.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()
	r := &Registry{
		prom:              prom,
		registeredMetrics: make(map[string]prometheus.Collector),
	}
	r.Metrics = NewMetrics()
	prom.MustRegister(
		r.Metrics.ActionsProcessed,
		r.Metrics.ActionQueueDepth,
		r.Metrics.ScheduledQueueSize,
		r.Metrics.ActionLatency,
		r.Metrics.GatewayStatus,
		r.Metrics.MessagesPublished,
		r.Metrics.MessagesReceived,
		r.Metrics.SubscriptionCount,
		r.Metrics.DataItemsActive,
		r.Metrics.SyncFaults,
		r.Metrics.PersistenceSaveDuration,
		r.Metrics.PersistenceFaults,
	)
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying *prometheus.Registry, e.g. to back an
// HTTP /metrics exposition handler in a host process.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// Register adds an extra collector (typically owned by a concrete gateway)
// under a namespaced key, rejecting duplicates.
func (r *Registry) Register(owner, name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", owner, name)
	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for %s", name, owner),
			"Registry", "Register")
	}

	if err := r.prom.Register(c); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "Registry", "Register")
		}
		return errors.WrapFatal(err, "Registry", "Register")
	}

	r.registeredMetrics[key] = c
	return nil
}

// Unregister removes a previously registered collector.
func (r *Registry) Unregister(owner, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", owner, name)
	c, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}
	if r.prom.Unregister(c) {
		delete(r.registeredMetrics, key)
		return true
	}
	return false
}
