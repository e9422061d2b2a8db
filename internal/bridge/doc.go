// Package bridge adapts realtime connection events for dashboard UI
// consumers.
//
// The bridge owns the handler registrations on the connection manager
// (attach/detach pairing, so nothing leaks across UI remounts), keeps
// last-seen caches for "most recent value" reads, derives the
// connection status indicator, and curates which business events become
// user notifications. Transport noise never reaches the notifier.
package bridge
