package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no metadata object exists for an id.
	ErrNotFound = errors.New("image not found")
	// ErrStorageUnavailable matches every transport-level failure of the object store.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// StorageError describes a failed object store call.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func NewStorageError(op, key string, err error) error {
	return &StorageError{Op: op, Key: key, Err: err}
}
