package models

import "errors"

var (
	// ErrNotFound means a referenced conversation, message or version group
	// does not exist. Surfaced to the caller, never retried.
	ErrNotFound = errors.New("not found")

	// ErrInvariant means stored state violates a structural invariant, such
	// as a version group whose positions are not contiguous. Treated as an
	// internal defect.
	ErrInvariant = errors.New("invariant violation")
)
