// Package notify delivers user-facing notifications raised by the
// dashboard bridge.
//
// The Notifier interface is the call contract the bridge depends on.
// Sinks included here: LogNotifier (structured log), SlackNotifier
// (webhook with a bounded queue, dedupe, and rate limiting), and Multi
// (fan-out).
package notify
