package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libratrack/pkg/apperr"
	"libratrack/pkg/retrieval"
)

func turns(n int) []Message {
	out := make([]Message, n)
	for i := range out {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		out[i] = Message{Role: role, Content: fmt.Sprintf("turn %d", i)}
	}
	return out
}

func TestAssembleWithoutHistory(t *testing.T) {
	msgs, err := Assemble(Input{Current: []Message{{Role: RoleUser, Content: "hello"}}})
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Role: RoleSystem, Content: SystemPrompt}, msgs[0])
	assert.Equal(t, Message{Role: RoleUser, Content: "hello"}, msgs[1])
}

func TestAssembleTruncatesHistory(t *testing.T) {
	history := turns(15)
	current := Message{Role: RoleUser, Content: "what next?"}

	msgs, err := Assemble(Input{History: history, Current: []Message{current}})
	require.NoError(t, err)

	// system, preamble, 10 history turns, separator, current
	require.Len(t, msgs, 14)
	assert.Equal(t, SystemPrompt, msgs[0].Content)
	assert.Equal(t, RoleSystem, msgs[1].Role)
	assert.Equal(t, "Below are the previous messages in this conversation (most recent 10 messages):", msgs[1].Content)
	for i := 0; i < MaxHistory; i++ {
		assert.Equal(t, history[5+i], msgs[2+i])
	}
	assert.Equal(t, Message{Role: RoleSystem, Content: "Current conversation:"}, msgs[12])
	assert.Equal(t, current, msgs[13])
}

func TestAssembleShortHistoryCount(t *testing.T) {
	msgs, err := Assemble(Input{History: turns(3), Current: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "Below are the previous messages in this conversation (most recent 3 messages):", msgs[1].Content)
	assert.Len(t, msgs, 7)
}

func TestAssembleAppendsContextToLastUserMessage(t *testing.T) {
	ctx := &retrieval.Context{SearchResults: []retrieval.BookData{{ID: "b1", Title: "Dune", Author: "Frank Herbert", Status: "AVAILABLE"}}}
	current := []Message{
		{Role: RoleUser, Content: "find books about sand"},
		{Role: RoleAssistant, Content: "one moment"},
	}

	msgs, err := Assemble(Input{History: turns(2), Current: current, Context: ctx})
	require.NoError(t, err)

	last := msgs[len(msgs)-2]
	assert.Equal(t, RoleUser, last.Role)
	assert.True(t, strings.HasPrefix(last.Content, "find books about sand\n\nContext information (not visible to user):\n{"))
	assert.Contains(t, last.Content, "\n  \"searchResults\": [")
	assert.Contains(t, last.Content, `"title": "Dune"`)
	assert.Equal(t, "one moment", msgs[len(msgs)-1].Content)

	// History turns are never annotated, and the caller's slice is untouched.
	assert.Equal(t, "find books about sand", current[0].Content)
	for _, m := range msgs[:len(msgs)-2] {
		assert.NotContains(t, m.Content, "Context information")
	}
}

func TestAssembleEmptyContextAddsNothing(t *testing.T) {
	msgs, err := Assemble(Input{
		Current: []Message{{Role: RoleUser, Content: "hello"}},
		Context: &retrieval.Context{},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestAssembleRejectsUnknownRole(t *testing.T) {
	_, err := Assemble(Input{Current: []Message{{Role: "tool", Content: "x"}}})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	_, err = Assemble(Input{History: []Message{{Role: "", Content: "x"}}, Current: []Message{{Role: RoleUser, Content: "y"}}})
	assert.True(t, apperr.IsValidation(err))
}
