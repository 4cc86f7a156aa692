// Package common defines shared constants and sentinel errors used across
// the update server components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Store-level errors.
	ErrorNotFound         = errors.New("not found")
	ErrorUnknownPartition = errors.New("unknown metadata partition")
	ErrorInvalidMetadata  = errors.New("invalid metadata xml")

	// Service-level errors (generic/internal flow control).
	ErrorInternal         = errors.New("internal error")
	ErrorNoMetadataSource = errors.New("no metadata source attached")
	ErrorNotImplemented   = errors.New("not implemented")

	// Request validation errors.
	ErrorInvalidRevisionIndex = errors.New("invalid revision index")

	// Cookie errors (invalid or malformed binding).
	ErrorInvalidCookie = errors.New("invalid cookie")

	// Bulk operation errors.
	ErrorCancelled = errors.New("operation cancelled")
)
