// Package auth provides authentication for switchboard staff.
//
// Customers are anonymous: they are identified only by the conversation
// they join. Representatives and admins are staff accounts stored in the
// users table and prove their identity with HS256 JWTs signed with the
// configured auth.jwt_secret (see the "token" CLI command).
//
// # Resolver
//
// Resolver is the single place identity claims are checked:
//
//   - websocket join_conversation with a userId (and token)
//   - bearer tokens on the representative REST endpoints
//   - bearer tokens on the polling submit endpoint
//
// When no secret is configured the Resolver trusts the claimed user ID,
// and bearer-token endpoints reply 503.
//
// # Context
//
// HTTP middleware stores the verified identity with WithAuth; handlers
// read it back with FromContext.
package auth
