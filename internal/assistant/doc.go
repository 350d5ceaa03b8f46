// Package assistant generates automated replies, handoff verdicts and
// representative reply suggestions from an OpenAI-compatible backend.
package assistant
