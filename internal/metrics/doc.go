/*
Package metrics provides Prometheus metrics for the rados client.

# Overview

The Collector counts every client operation by name and outcome, observes
latency and payload size, and tracks the resources the client holds open
against the cluster: in-flight completions, enumeration cursors and
connected handles. Buffer regrowths triggered by the backend reporting
overflow are counted separately so an undersized initial guess shows up
on a dashboard.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Address:   ":9283",
		Path:      "/metrics",
		Namespace: "rados",
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(context.Background())

# Metrics

	rados_client_operations_total{operation,status}
	rados_client_operation_duration_seconds{operation}
	rados_client_operation_size_bytes{operation}
	rados_client_errors_total{operation,code}
	rados_client_overflow_retries_total{operation}
	rados_client_inflight_completions
	rados_client_open_cursors
	rados_client_connections

Errors are labelled with their pkg/errors code, for example
OBJECT_NOT_FOUND or BUFFER_OVERFLOW.

# Endpoints

Start serves the registry at Config.Path, a liveness check at /health and
a plain-text per-operation summary at /debug/operations. Handler exposes
the registry for embedding in another server.

# Nil Collector

Every method is safe on a nil *Collector, so callers that do not want
metrics pass nil instead of checking at each call site.
*/
package metrics
