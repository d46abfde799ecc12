package catalog

import (
	"errors"
	"fmt"
)

// ErrBackend matches any *BackendError.
var ErrBackend = errors.New("catalog backend error")

// BackendError reports a failed or non-success discovery request. StatusCode
// is 0 when no response was received.
type BackendError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *BackendError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("catalog request failed with status %d", e.StatusCode)
	case e.StatusCode == 0:
		return fmt.Sprintf("catalog request failed: %v", e.Err)
	default:
		return fmt.Sprintf("catalog request failed with status %d: %v", e.StatusCode, e.Err)
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }
