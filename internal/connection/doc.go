// Package connection implements the realtime connection manager.
//
// The manager:
//   - Maintains a single WebSocket connection to the realtime gateway,
//     authenticated with a short-lived token fetched per attempt
//   - Reconnects after unplanned closures with bounded exponential backoff
//   - Sends an application-level JSON heartbeat and tears down stale
//     transports that stop answering
//   - Decodes incoming frames and dispatches them synchronously to
//     registered handlers, in registration order
//   - Replays the subscribed topic set after every reconnect
//
// Each dialed transport gets a generation number. Frames, errors, and
// loop exits from a superseded generation are discarded, so a slow old
// socket can never corrupt the state of its replacement.
package connection
