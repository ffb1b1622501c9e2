package analysis

import "errors"

// ErrNotFound covers both "does not exist" and "exists but owned by someone
// else" so ids cannot be enumerated across principals.
var ErrNotFound = errors.New("not found")

// ErrInvalidInput indicates a malformed request shape (bad uuid, unsupported
// enum value, out-of-range field).
var ErrInvalidInput = errors.New("invalid input")

// ErrInvalidFormat indicates an unsupported export format.
var ErrInvalidFormat = errors.New("invalid export format")
