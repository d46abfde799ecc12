package agent

import (
	"errors"
	"fmt"
)

// ErrLoopExhausted matches any *LoopExhaustedError.
var ErrLoopExhausted = errors.New("tool loop exhausted")

// LoopExhaustedError reports a turn that hit the iteration cap while the
// model was still requesting tools.
type LoopExhaustedError struct {
	Iterations int `json:"iterations"`

	// Pending names the tools the model asked for on its last iteration.
	Pending []string `json:"pending,omitempty"`
}

func (e *LoopExhaustedError) Error() string {
	return fmt.Sprintf("tool loop stopped after %d iteration(s) with %d pending tool call(s)", e.Iterations, len(e.Pending))
}

func (e *LoopExhaustedError) Is(target error) bool { return target == ErrLoopExhausted }
