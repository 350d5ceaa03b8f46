// Package notify alerts staff when customers write in.
//
// Channels are independent: email (SMTP with per-conversation threading),
// Slack incoming webhooks and a Matrix room. Multi fans out to every
// enabled channel. Delivery is best-effort and never blocks the message
// pipeline; the caller runs Notify in the background with a timeout.
package notify
