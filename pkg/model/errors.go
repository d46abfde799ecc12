package model

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when a provider answers with no candidate.
var ErrEmptyResponse = errors.New("model returned no response")

// APIError is a non-success answer from a provider API.
type APIError struct {
	Provider   Provider
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s API error (%d, %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
}
