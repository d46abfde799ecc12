package agent

import (
	"github.com/kadirpekel/fosrc/pkg/model"
)

// State is a position in the tool-dispatch state machine.
type State string

const (
	StateAwaitingModel  State = "AWAITING_MODEL"
	StateExecutingTools State = "EXECUTING_TOOLS"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Turn is the serializable state of one question being answered. Messages
// holds the scratch transcript: the prompt, then every assistant and tool
// message the loop produced.
type Turn struct {
	State     State           `json:"state"`
	Iteration int             `json:"iteration"`
	Messages  []model.Message `json:"messages"`
	Answer    string          `json:"answer,omitempty"`
	Usage     model.Usage     `json:"usage"`

	// Error is set for FAILED turns.
	Error string `json:"error,omitempty"`

	// Exhausted is set when the iteration cap stopped the turn.
	Exhausted *LoopExhaustedError `json:"exhausted,omitempty"`
}

// NewTurn starts a turn from the given prompt messages.
func NewTurn(prompt []model.Message) *Turn {
	return &Turn{
		State:    StateAwaitingModel,
		Messages: append([]model.Message(nil), prompt...),
	}
}

func (t *Turn) addUsage(u model.Usage) {
	t.Usage.PromptTokens += u.PromptTokens
	t.Usage.CompletionTokens += u.CompletionTokens
	t.Usage.TotalTokens += u.TotalTokens
}
