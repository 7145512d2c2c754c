package remote

import (
	"errors"
	"fmt"
)

// Sentinel causes carried inside a ResolutionError.
var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrMaxSizeExceeded  = errors.New("download exceeds size limit")
)

// ResolutionError reports a failed check or download of a remote link.
type ResolutionError struct {
	Op    string
	URL   string
	Cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("link resolution failed during %s of %q: %v", e.Op, e.URL, e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

func newResolutionError(op, url string, cause error) *ResolutionError {
	return &ResolutionError{Op: op, URL: url, Cause: cause}
}
