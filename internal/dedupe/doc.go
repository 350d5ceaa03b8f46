// Package dedupe provides a time-bounded claim cache so a retried client
// submission with the same idempotency key is processed only once.
package dedupe
