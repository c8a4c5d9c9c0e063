package deadline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid marks a record missing its task or due value.
	ErrInvalid = errors.New("invalid deadline")

	// ErrDuplicate marks a record judged equivalent to one already stored.
	ErrDuplicate = errors.New("duplicate deadline")

	// ErrNotFound marks an operation on an unknown identifier.
	ErrNotFound = errors.New("deadline not found")
)

// StorageError reports a failed read or write of the durable collection.
// When it is returned from a mutating call, nothing was committed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("deadline storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
