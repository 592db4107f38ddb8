package metric

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the dispatch engine, gateway
// registry, and data-item core report to. A nil *Metrics is a valid,
// documented no-op collaborator: every record method on a nil Metrics
// is a guarded no-op, so callers never need a feature flag to disable it.
type Metrics struct {
	ActionsProcessed   *prometheus.CounterVec
	ActionQueueDepth   prometheus.Gauge
	ScheduledQueueSize prometheus.Gauge
	ActionLatency      prometheus.Histogram

	GatewayStatus        *prometheus.GaugeVec
	MessagesPublished    *prometheus.CounterVec
	MessagesReceived     *prometheus.CounterVec
	SubscriptionCount    *prometheus.GaugeVec

	DataItemsActive *prometheus.GaugeVec
	SyncFaults      *prometheus.CounterVec

	PersistenceSaveDuration prometheus.Histogram
	PersistenceFaults       *prometheus.CounterVec
}

// NewMetrics constructs the full set of collectors under the "miniac" namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		ActionsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniac",
			Subsystem: "dispatch",
			Name:      "actions_processed_total",
			Help:      "Total actions executed by the dispatch loop, by action kind.",
		}, []string{"kind"}),
		ActionQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "miniac",
			Subsystem: "dispatch",
			Name:      "action_queue_depth",
			Help:      "Current length of the unscheduled action queue.",
		}),
		ScheduledQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "miniac",
			Subsystem: "dispatch",
			Name:      "scheduled_queue_size",
			Help:      "Current number of pending scheduled actions.",
		}),
		ActionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "miniac",
			Subsystem: "dispatch",
			Name:      "action_duration_seconds",
			Help:      "Time spent executing a single dispatched action.",
			Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		GatewayStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "miniac",
			Subsystem: "gateway",
			Name:      "status",
			Help:      "Gateway lifecycle status (0=created,1=starting,2=started,3=stopping,4=stopped).",
		}, []string{"gateway"}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniac",
			Subsystem: "gateway",
			Name:      "messages_published_total",
			Help:      "Total messages published through a gateway.",
		}, []string{"gateway"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniac",
			Subsystem: "gateway",
			Name:      "messages_received_total",
			Help:      "Total messages a gateway pushed into the dispatch loop.",
		}, []string{"gateway"}),
		SubscriptionCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "miniac",
			Subsystem: "router",
			Name:      "subscription_count",
			Help:      "Current number of live subscriptions, by topic filter.",
		}, []string{"filter"}),
		DataItemsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "miniac",
			Subsystem: "dataitem",
			Name:      "active",
			Help:      "Number of data items currently in the Active state, by owning gateway.",
		}, []string{"gateway"}),
		SyncFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniac",
			Subsystem: "dataitem",
			Name:      "sync_faults_total",
			Help:      "Data items whose onSynchronizeValue call returned an error.",
		}, []string{"item"}),
		PersistenceSaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "miniac",
			Subsystem: "persistence",
			Name:      "save_duration_seconds",
			Help:      "Time spent saving bundles to the configured PersistentStorage.",
			Buckets:   prometheus.DefBuckets,
		}),
		PersistenceFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniac",
			Subsystem: "persistence",
			Name:      "faults_total",
			Help:      "Load/save failures against the configured PersistentStorage.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) recordAction(kind string) {
	if m == nil {
		return
	}
	m.ActionsProcessed.WithLabelValues(kind).Inc()
}

// RecordAction increments the processed-actions counter for kind. Safe on a nil Metrics.
func (m *Metrics) RecordAction(kind string) { m.recordAction(kind) }

// SetQueueDepth reports the current unscheduled queue length. Safe on a nil Metrics.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.ActionQueueDepth.Set(float64(n))
}

// SetScheduledQueueSize reports the current scheduled queue length. Safe on a nil Metrics.
func (m *Metrics) SetScheduledQueueSize(n int) {
	if m == nil {
		return
	}
	m.ScheduledQueueSize.Set(float64(n))
}

// ObserveActionDuration records how long a single action took to execute. Safe on a nil Metrics.
func (m *Metrics) ObserveActionDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ActionLatency.Observe(seconds)
}

// SetGatewayStatus reports a gateway's lifecycle status code. Safe on a nil Metrics.
func (m *Metrics) SetGatewayStatus(gatewayID string, status float64) {
	if m == nil {
		return
	}
	m.GatewayStatus.WithLabelValues(gatewayID).Set(status)
}

// RecordPublish increments the published-messages counter for a gateway. Safe on a nil Metrics.
func (m *Metrics) RecordPublish(gatewayID string) {
	if m == nil {
		return
	}
	m.MessagesPublished.WithLabelValues(gatewayID).Inc()
}

// RecordReceive increments the received-messages counter for a gateway. Safe on a nil Metrics.
func (m *Metrics) RecordReceive(gatewayID string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(gatewayID).Inc()
}

// SetSubscriptionCount reports the live subscription count for a topic filter. Safe on a nil Metrics.
func (m *Metrics) SetSubscriptionCount(filter string, n int) {
	if m == nil {
		return
	}
	m.SubscriptionCount.WithLabelValues(filter).Set(float64(n))
}

// SetDataItemsActive reports the active data-item count for a gateway. Safe on a nil Metrics.
func (m *Metrics) SetDataItemsActive(gatewayID string, n int) {
	if m == nil {
		return
	}
	m.DataItemsActive.WithLabelValues(gatewayID).Set(float64(n))
}

// RecordSyncFault increments the sync-fault counter for a data item. Safe on a nil Metrics.
func (m *Metrics) RecordSyncFault(itemID string) {
	if m == nil {
		return
	}
	m.SyncFaults.WithLabelValues(itemID).Inc()
}

// ObservePersistenceSave records how long a bundle save took. Safe on a nil Metrics.
func (m *Metrics) ObservePersistenceSave(seconds float64) {
	if m == nil {
		return
	}
	m.PersistenceSaveDuration.Observe(seconds)
}

// RecordPersistenceFault increments the persistence-fault counter for an operation (e.g. "save-gateway", "save-dataitem"). Safe on a nil Metrics.
func (m *Metrics) RecordPersistenceFault(operation string) {
	if m == nil {
		return
	}
	m.PersistenceFaults.WithLabelValues(operation).Inc()
}
