package tagfstypes

import (
	"errors"
)

var (
	ErrNotFound       = errors.New("file not found")
	ErrDataIntegrity  = errors.New("data integrity: index references a missing blob")
	ErrIndexCorrupt   = errors.New("index corrupt")
	ErrNodeTerminated = errors.New("node terminated")
	ErrInvalidHash    = errors.New("invalid hash")
	ErrInvalidTag     = errors.New("invalid tag")
	ErrInvalidRecord  = errors.New("invalid file record")
	ErrSizeMismatch   = errors.New("declared size does not match content length")
	ErrEmptyTagSet    = errors.New("tag set must not be empty")
)

// true for errors caused by the caller's input rather than by the node
func IsValidationError(err error) bool {
	for _, candidate := range []error{
		ErrInvalidHash,
		ErrInvalidTag,
		ErrInvalidRecord,
		ErrSizeMismatch,
		ErrEmptyTagSet,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}

	return false
}
