// Package gateway wires the switchboard server together.
//
// # Overview
//
// The Gateway owns the store, the connection registry, the message
// pipeline, the handoff controller and both client transports, and serves
// them over one HTTP server.
//
// # HTTP Surface
//
//   - GET /ws - persistent channel (join_conversation, send_message, typing)
//   - GET /api/polling/messages/{conversationId} - long-poll for new messages
//   - POST /api/polling/send/{conversationId} - send without a websocket
//   - GET /api/polling/status - transport load
//   - POST /api/conversations - start a conversation (automated, active)
//   - GET /api/conversations[/{id}[/messages]] - representative console reads
//   - PATCH /api/conversations/{id} - set status, or hand back to the assistant
//   - POST /api/conversations/{id}/takeover - representative takes over
//   - POST /api/conversations/{id}/suggestions - drafted replies
//   - GET /api/stats - dashboard counts
//   - GET /api/representatives, PATCH /api/representatives/{id}/status
//   - GET /health, GET /health/ready
//
// Console routes require a representative bearer token. Polling sends
// accept one optionally; it is what makes a polled message a
// representative's.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // returns after ctx is cancelled and shutdown completes
//
// Tests build a Gateway with NewWithDeps to supply a store, generator,
// suggester and notifier of their own.
package gateway
