// Package version holds the ticket-agent release version.
package version

// Current is the semantic version reported by `ticket-agent version`.
const Current = "0.1.0"
