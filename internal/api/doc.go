// Package api serves the operational HTTP surface.
//
// Endpoints:
//   - GET /healthz: liveness plus per-component checks
//   - GET /status: bridge status, last-seen caches, connection counters
//   - GET /metrics: Prometheus exposition
package api
