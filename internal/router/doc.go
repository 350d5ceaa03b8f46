// Package router implements the persistent-channel protocol.
//
// Each live connection gets a Session that moves through three states:
//
//	unjoined --join--> joined(unauthenticated) --valid identity--> joined(authenticated)
//
// A join without identity is an anonymous customer and is authenticated
// immediately. A join carrying a user id or token must resolve to a
// representative or admin; otherwise the session is joined but may not
// send or type. Sender kind and id always come from the session, never
// from the frame.
//
// Malformed frames are answered with an error event and drop an
// authenticated session back to joined(unauthenticated). The connection is
// never closed for bad input.
package router
