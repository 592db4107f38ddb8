// Package metric provides the Prometheus collectors the dispatch engine,
// gateway registry, and data-item core report progress and faults to.
//
// NewRegistry constructs a dedicated *prometheus.Registry with the core
// Metrics already registered, plus the standard Go runtime/process
// collectors. A gateway that needs its own collectors (connection state,
// reconnect counts) registers them under its own namespaced key via
// Registry.Register, so two gateways can never collide on a metric name.
//
// Every Metrics method is nil-safe: passing a nil *Metrics into the
// dispatch engine or gateway registry disables metrics entirely without
// requiring a separate feature flag or conditional throughout the codebase.
//
//	registry := metric.NewRegistry()
//	app := miniac.NewApplication(miniac.WithMetrics(registry.Metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry.Prometheus(), promhttp.HandlerOpts{}))
package metric
