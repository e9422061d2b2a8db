// Package journal persists decoded gateway frames to Postgres for
// replay and audit.
//
// Pipeline: the connection manager's frame tap feeds a growable ring
// buffer, and a batch writer drains the buffer into append-only
// inserts. Bursts grow the buffer instead of dropping frames; the
// database only ever sees batches.
package journal
