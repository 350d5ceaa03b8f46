// Package conversation holds the shared core of message delivery.
//
// # Registry
//
// Registry tracks live connections and the conversation each has joined:
//
//	reg := conversation.NewRegistry(30*time.Second, logger)
//	go reg.Run(ctx) // liveness sweep
//
// Broadcast is best-effort. A member whose Send fails is closed and
// dropped without affecting the others. The sweep closes any connection
// that has not answered the previous ping (see MarkAlive).
//
// # Service
//
// Service is the one pipeline both transports use:
//
//  1. Lock the conversation
//  2. Persist the message (never cancelled by the caller)
//  3. Broadcast new_message to members, minus the sender
//  4. For customer messages: notify staff, and if the conversation is
//     automated hand the message to the Evaluator
//
// Steps 1-3 happen under a per-conversation lock so that every member sees
// messages in store order. Step 4 runs in the background.
//
// # Events
//
// Outbound events (joined, new_message, typing, error) are concrete types
// implementing Event and marshal to JSON with a "type" tag.
package conversation
