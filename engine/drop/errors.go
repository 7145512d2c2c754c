package drop

import (
	"errors"
	"fmt"
)

// ErrUnsupportedItem matches every UnsupportedItemError.
var ErrUnsupportedItem = errors.New("unsupported item")

// UnsupportedItemError is returned when a payload has no usable shape.
type UnsupportedItemError struct {
	Payload string
	Reason  string
}

func (e *UnsupportedItemError) Error() string {
	return fmt.Sprintf("unsupported %s payload: %s", e.Payload, e.Reason)
}

func (e *UnsupportedItemError) Unwrap() error {
	return ErrUnsupportedItem
}

// StorageError is returned when the scratch directory cannot be written.
type StorageError struct {
	Op    string
	Path  string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Path, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}
