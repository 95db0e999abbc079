package main

import (
	"errors"
	"fmt"
)

// Sentinel errors for failure classes that callers branch on.
var (
	// ErrSubmissionUnconfirmed means none of the outcome signals fired
	// within their timeouts after the submit click.
	ErrSubmissionUnconfirmed = errors.New("submission result could not be confirmed")

	// ErrFileAttachFailed means the file input reported zero attached files
	// even after the DataTransfer injection fallback.
	ErrFileAttachFailed = errors.New("file attachment could not be verified")

	// ErrNotFound is returned by the project store for unknown project ids.
	ErrNotFound = errors.New("project not found")
)

// AuthError aborts the whole run: the login ceremony failed at a fatal step.
type AuthError struct {
	Step string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed at %s: %v", e.Step, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// DiscoveryError means the invite list container exists but could not be
// read, which means selector drift rather than an empty dashboard. Empty dashboards are a
// normal result and never produce this error.
type DiscoveryError struct {
	Selector string
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("invite discovery failed (selector %q): %v", e.Selector, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// InvalidFileError rejects a submission before any browser work happens.
type InvalidFileError struct {
	Path   string
	Reason string
}

func (e *InvalidFileError) Error() string {
	return fmt.Sprintf("invalid audio file %q: %s", e.Path, e.Reason)
}

// ProviderError wraps failures from the speech or blob collaborators.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// truncateNote bounds the human-readable failure explanation written back to
// the store.
func truncateNote(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	return msg[:max]
}
