package feed

import "errors"

// Error taxonomy surfaced to callers. The HTTP layer maps these with
// errors.Is; everything else is a server error.
var (
	// ErrInvalidInput marks a request rejected before any store access.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a post or referenced parent that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks a post the viewer is not allowed to see. It is
	// distinct from ErrNotFound but equally content-free.
	ErrForbidden = errors.New("forbidden")
)
