// Package handoff owns conversation mode.
//
// A conversation starts automated. Each customer message is passed to
// Controller.Evaluate, which either escalates (automated -> escalated,
// status waiting) or posts a generated reply. A representative claims the
// conversation with TakeOver (automated or escalated -> human). Every mode
// write is a store-level compare-and-set, so a lost race is a no-op rather
// than a double transition.
package handoff
