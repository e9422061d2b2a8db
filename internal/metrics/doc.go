// Package metrics publishes Prometheus gauges for the realtime pipeline.
//
// Key metrics:
//   - Connection state, reconnect attempts, and heartbeat counters
//   - Frame throughput by kind, decode errors, and tap overflow
//   - Bridge error and notification volume
//   - Journal insert/conflict counts and buffer depth
//
// The collector polls subsystem stat snapshots on a fixed interval and
// sets gauges from them, so scraped values trail the live counters by at
// most one refresh.
package metrics
