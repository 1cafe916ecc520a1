/*
Package metrics provides Prometheus metrics collection and exposition.

All metrics are registered with the default registry at package init and
served through the promhttp handler. The Collector samples entity gauges
(clusters and nodes by status) from the store on a fixed interval; counters
and histograms are updated inline by the dispatcher and lock manager.

Label discipline: only cardinality-bounded values (status words, verbs,
scopes) are used as labels, never entity ids.
*/
package metrics
