// Package metrics records sync run counters in a Prometheus registry and
// writes them as a node_exporter textfile at the end of a run.
package metrics
