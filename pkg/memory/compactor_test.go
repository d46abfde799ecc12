package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/fosrc/pkg/model"
)

func history(turns int) []model.Message {
	msgs := []model.Message{model.AssistantMessage("Hello.  How can I help you today?")}
	for i := 1; i <= turns; i++ {
		msgs = append(msgs,
			model.UserMessage(fmt.Sprintf("question %d", i)),
			model.AssistantMessage(fmt.Sprintf("answer %d", i)),
		)
	}
	return msgs
}

func TestShouldCompact(t *testing.T) {
	c := NewCompactor(model.NewScripted(), Config{}, nil)
	assert.False(t, c.ShouldCompact(5))
	assert.True(t, c.ShouldCompact(6))
	assert.Equal(t, DefaultWindow, c.Window())
}

func TestFirstCompactionCoversWholeHistory(t *testing.T) {
	msgs := history(5)
	input := Input("", msgs)

	assert.Contains(t, input, "assistant: Hello.  How can I help you today?\n\n")
	for i := 1; i <= 5; i++ {
		assert.Contains(t, input, fmt.Sprintf("user: question %d\n\nassistant: answer %d\n\n", i, i))
	}
}

func TestLaterCompactionUsesNewestPair(t *testing.T) {
	input := Input("1. question 1 - answer 1", history(3))
	assert.Equal(t, "user: question 3\n\nassistant: answer 3\n\n", input)
}

func TestCompactReplacesSummary(t *testing.T) {
	llm := model.NewScripted(
		model.Reply("1. q1 - a1\n2. q2 - a2\n3. q3 - a3"),
		model.Reply("1. q1 - a1\n2. q2 - a2\n3. q3 - a3\n4. q4 - a4"),
	)
	c := NewCompactor(llm, Config{}, nil)
	ctx := context.Background()

	first, err := c.Compact(ctx, "", history(3))
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := c.Compact(ctx, first, history(4))
	require.NoError(t, err)
	assert.Contains(t, second, "4. q4 - a4")

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Messages, 1)
	assert.Equal(t, model.RoleUser, reqs[1].Messages[0].Role)
	assert.Contains(t, reqs[1].Messages[0].Content, "Previous Chat History Summary:\n"+first+"\n")
	assert.Contains(t, reqs[1].Messages[0].Content, "New chat history:\nuser: question 4\n\nassistant: answer 4\n\n")
	assert.NotContains(t, reqs[1].Messages[0].Content, "question 1\n")
}

func TestCompactKeepsPreviousSummaryOnEmptyReply(t *testing.T) {
	c := NewCompactor(model.NewScripted(model.Reply("")), Config{}, nil)
	got, err := c.Compact(context.Background(), "1. kept", history(4))
	require.NoError(t, err)
	assert.Equal(t, "1. kept", got)
}

func TestCompactFailure(t *testing.T) {
	boom := errors.New("rate limited")
	c := NewCompactor(model.NewScripted(model.Fail(boom)), Config{}, nil)
	_, err := c.Compact(context.Background(), "", history(3))
	assert.ErrorIs(t, err, boom)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Error(t, (&Config{Threshold: -1, Window: 5}).Validate())
}
