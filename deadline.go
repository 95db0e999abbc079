package main

import (
	"strings"
)

// NoDeadline is the placeholder recorded when no metadata tag mentions a
// remaining time window.
const NoDeadline = "No deadline found"

// DeadlineFromMeta derives the deadline string from the invite's metadata
// tags. The portal renders the window as free text ("3 days remaining",
// "22 hours remaining"), so the first tag containing "remaining" is taken
// verbatim; formats vary too much between deployments to parse numerically.
func DeadlineFromMeta(meta []string) string {
	for _, tag := range meta {
		if strings.Contains(strings.ToLower(tag), "remaining") {
			return strings.TrimSpace(tag)
		}
	}
	return NoDeadline
}
