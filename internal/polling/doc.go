// Package polling is the request/response fallback transport.
//
// Clients without a websocket long-poll for messages after their last seen
// message id and post messages through the same pipeline websocket clients
// use, so both transports observe one ordered history. Poll sessions are
// bookkeeping only: they are keyed by client id and reclaimed once idle.
package polling
