// Package prompt builds the ordered message list sent to the model.
package prompt

import (
	"encoding/json"
	"fmt"

	"libratrack/pkg/apperr"
	"libratrack/pkg/retrieval"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxHistory is the number of prior turns replayed to the model.
const MaxHistory = 10

const SystemPrompt = `You are a helpful assistant for a library management system called LibraTrack.
Your role is to help users find information about books in the library collection, check book availability, and provide recommendations.
You have access to the library database and can search for books by title, author, genre, or keywords.
Always respond in a friendly, helpful, and concise manner. If you don't know the answer to a question, say so honestly.

IMPORTANT: Maintain context from previous messages in the conversation. Reference previous questions and responses when appropriate.`

const (
	historyPreamble  = "Below are the previous messages in this conversation (most recent %d messages):"
	historySeparator = "Current conversation:"
	contextHeader    = "\n\nContext information (not visible to user):\n"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Input struct {
	History []Message
	Current []Message
	Context *retrieval.Context
}

func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Assemble returns the system instruction, the last MaxHistory history turns
// framed by system markers, then the current turns. Retrieved context is
// appended to the text of the last user message.
func Assemble(in Input) ([]Message, error) {
	for i, m := range in.History {
		if !ValidRole(m.Role) {
			return nil, apperr.Validation(fmt.Sprintf("conversationHistory[%d].role", i), "must be user, assistant or system")
		}
	}
	for i, m := range in.Current {
		if !ValidRole(m.Role) {
			return nil, apperr.Validation(fmt.Sprintf("messages[%d].role", i), "must be user, assistant or system")
		}
	}

	history := in.History
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	out := make([]Message, 0, len(history)+len(in.Current)+3)
	out = append(out, Message{Role: RoleSystem, Content: SystemPrompt})
	if len(history) > 0 {
		out = append(out, Message{Role: RoleSystem, Content: fmt.Sprintf(historyPreamble, len(history))})
		out = append(out, history...)
		out = append(out, Message{Role: RoleSystem, Content: historySeparator})
	}
	out = append(out, in.Current...)

	if in.Context.IsEmpty() {
		return out, nil
	}
	data, err := json.MarshalIndent(in.Context, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == RoleUser {
			out[i].Content += contextHeader + string(data)
			break
		}
	}
	return out, nil
}
