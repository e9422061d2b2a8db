// Package session persists realtime session state so a restarted process
// can resume with the topic set it had before.
//
// A Session records the gateway-assigned session ID and the topics that
// were subscribed while it was live. Store implementations:
//
//   - MemoryStore: process-local, for tests and single-run tools
//   - RedisStore: shared cache with TTL, for short-lived deployments
//   - PostgresStore: durable, for dashboards that must survive restarts
package session
