// Package store provides persistent storage for switchboard using SQLite.
//
// # Data Models
//
//   - Conversation: a support session; carries status, mode and the owning representative
//   - Message: immutable entry authored by a customer, representative, assistant or system
//   - User: staff account (representative or admin)
//   - EmailThread: Message-ID chain for notification emails
//
// # Mode Transitions
//
// Conversation mode is only changed through TransitionMode, a single
// compare-and-set UPDATE. A transition whose source mode no longer holds
// fails with ErrModeConflict and leaves the row untouched. The schema
// enforces that mode human carries a representative and the other modes
// do not.
//
// # Ordering
//
// Messages are ordered by created_at, ties broken by insertion order
// (the internal seq column, never exposed to clients).
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Testing
//
// Use NewMockStore() for unit tests. Use NewSQLiteStore with a path under
// t.TempDir() for integration tests with real SQLite.
package store
