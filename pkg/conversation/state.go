package conversation

import (
	"fmt"

	"github.com/kadirpekel/fosrc/pkg/model"
)

// Greeting seeds every new or reset conversation.
const Greeting = "Hello.  How can I help you today?"

const chatTemplate = `You are a scientific expert that can communicate simply, clearly, and concisely.

Use the following chat history summary if present to answer questions if needed:
%s
`

// ChatPrompt is the session system prompt carrying the rolling summary.
func ChatPrompt(summary string) string {
	return fmt.Sprintf(chatTemplate, summary)
}

// State is the durable part of a conversation: the user-visible messages and
// one rolling summary. Tool traffic never lands here.
type State struct {
	Messages []model.Message `json:"messages"`
	Summary  string          `json:"summary"`
}

// NewState returns a conversation holding only the greeting.
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset drops history and summary, restoring the greeting.
func (s *State) Reset() {
	s.Messages = []model.Message{model.AssistantMessage(Greeting)}
	s.Summary = ""
}

// Window returns a copy of the newest n messages.
func (s *State) Window(n int) []model.Message {
	start := max(len(s.Messages)-n, 0)
	return append([]model.Message(nil), s.Messages[start:]...)
}

// Clone returns a deep enough copy to mutate independently.
func (s *State) Clone() *State {
	return &State{
		Messages: append([]model.Message(nil), s.Messages...),
		Summary:  s.Summary,
	}
}
