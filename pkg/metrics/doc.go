/*
Package metrics provides Prometheus metrics collection and exposition
for the storage engine.

The metrics package defines and registers engine metrics using the
Prometheus client library, providing observability into transaction
outcomes, write-conflict and constraint-violation rates, index
population, and write-ahead-log backlog. Metrics are exposed via an
HTTP endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (active tx count)    │          │
	│  │  Counter: Monotonic increases (conflicts)   │          │
	│  │  Histogram: Distributions (tx duration)     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Transaction: active, total, duration       │          │
	│  │  Conflicts: write conflicts, unique violate  │          │
	│  │  Index: entries, build duration, evictions  │          │
	│  │  Masterpointer: active, blocks              │          │
	│  │  WAL: markers, throttled, pending bytes     │          │
	│  │  Replay: duration, marker count             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

docstore_transactions_active:
  - Type: Gauge
  - Number of transactions currently ONGOING

docstore_transactions_total{outcome}:
  - Type: Counter
  - Labels: outcome (committed, rolled_back)

docstore_write_conflicts_total{collection}:
  - Type: Counter
  - Write-write conflicts per collection; registered, but no code path
    increments it

docstore_unique_constraint_violations_total{index_type}:
  - Type: Counter
  - Unique-index violations by index type; registered, but no code path
    increments it

docstore_index_entries_total{collection, index_type}:
  - Type: Gauge
  - Set once, when the index is added, to the index's Memory() estimate
    (not an entry count)

docstore_cap_constraint_evictions_total{collection}:
  - Type: Counter

docstore_masterpointers_active{collection}:
  - Type: Gauge

docstore_wal_throttled:
  - Type: Gauge
  - 1 when the WAL is signalling back-pressure

# Usage

	import "github.com/docstore/engine/pkg/metrics"

	metrics.TransactionsActive.Inc()
	metrics.TransactionsTotal.WithLabelValues("committed").Inc()

	timer := metrics.NewTimer()
	// ... commit ...
	timer.ObserveDuration(metrics.TransactionDuration)

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

Package Init Registration:
  - All metrics registered in init(), panics on duplicate registration.

Label Discipline:
  - Labels are bounded (collection name, index type, marker kind), never
    transaction or revision identifiers.
*/
package metrics
