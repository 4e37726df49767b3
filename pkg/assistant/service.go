// Package assistant runs one conversational turn: retrieval, prompt
// assembly and the model call.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"libratrack/pkg/apperr"
	"libratrack/pkg/history"
	"libratrack/pkg/intent"
	"libratrack/pkg/llm"
	"libratrack/pkg/prompt"
	"libratrack/pkg/retrieval"
)

// Apology replaces the reply whenever a turn cannot be completed.
const Apology = "I apologize, but I encountered an error. Please try again later."

type Fetcher interface {
	Fetch(ctx context.Context, action *intent.Action) (*retrieval.Context, error)
}

// Request is a stateless turn where the caller holds the history.
type Request struct {
	Messages            []prompt.Message `json:"messages"`
	Action              *intent.Action   `json:"action"`
	ConversationHistory []prompt.Message `json:"conversationHistory"`
}

type Reply struct {
	Response string         `json:"response"`
	Action   *intent.Action `json:"action,omitempty"`
	Degraded bool           `json:"degraded"`
}

type Service struct {
	fetcher    Fetcher
	model      llm.Completer
	history    history.Store
	classifier *intent.Classifier
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(fetcher Fetcher, model llm.Completer, store history.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:    fetcher,
		model:      model,
		history:    store,
		classifier: intent.NewClassifier(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Respond answers a stateless turn. Errors are returned to the caller.
func (s *Service) Respond(ctx context.Context, req Request) (string, error) {
	if req.Messages == nil {
		return "", apperr.Validation("messages", "Invalid messages format")
	}
	return s.complete(ctx, req.ConversationHistory, req.Messages, req.Action)
}

func (s *Service) complete(ctx context.Context, past, current []prompt.Message, action *intent.Action) (string, error) {
	var rc *retrieval.Context
	if action != nil {
		var err error
		rc, err = s.fetcher.Fetch(ctx, action)
		if err != nil {
			return "", fmt.Errorf("retrieve %s: %w", action.Type, err)
		}
	}

	msgs, err := prompt.Assemble(prompt.Input{History: past, Current: current, Context: rc})
	if err != nil {
		return "", err
	}
	return s.model.Complete(ctx, msgs)
}

// StartConversation opens a server-owned session seeded with the greeting.
func (s *Service) StartConversation(ctx context.Context) (*history.Conversation, error) {
	id := history.NewID()
	greeting := history.Turn{Role: prompt.RoleAssistant, Content: history.GreetingMessage, Timestamp: s.now()}
	if err := s.history.Append(ctx, id, greeting); err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}
	return s.history.Get(ctx, id)
}

// Converse classifies content, answers it with the last prompt.MaxHistory
// turns as context and stores both turns. A failed model call is absorbed:
// the apology is stored and returned with Degraded set.
func (s *Service) Converse(ctx context.Context, id, content string) (*Reply, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("content", "is required")
	}
	if _, err := s.history.Get(ctx, id); err != nil {
		return nil, err
	}

	past, err := s.history.Recent(ctx, id, prompt.MaxHistory)
	if err != nil {
		return nil, err
	}
	action := s.classifier.Classify(content)

	userTurn := history.Turn{Role: prompt.RoleUser, Content: content, Timestamp: s.now()}
	if err := s.history.Append(ctx, id, userTurn); err != nil {
		return nil, err
	}

	reply := &Reply{Action: action}
	text, err := s.complete(ctx, ToMessages(past), []prompt.Message{{Role: prompt.RoleUser, Content: content}}, action)
	if err != nil {
		s.logger.Error("assistant turn failed", "conversation", id, "error", err)
		text = Apology
		reply.Degraded = true
	}
	reply.Response = text

	assistantTurn := history.Turn{Role: prompt.RoleAssistant, Content: text, Timestamp: s.now()}
	if err := s.history.Append(ctx, id, assistantTurn); err != nil {
		return nil, err
	}
	return reply, nil
}

func (s *Service) Conversation(ctx context.Context, id string) (*history.Conversation, error) {
	return s.history.Get(ctx, id)
}

func (s *Service) Conversations(ctx context.Context) ([]history.Summary, error) {
	return s.history.List(ctx)
}

func (s *Service) ClearConversation(ctx context.Context, id string) error {
	return s.history.Delete(ctx, id)
}

// ToMessages converts stored turns to prompt messages.
func ToMessages(turns []history.Turn) []prompt.Message {
	out := make([]prompt.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, prompt.Message{Role: t.Role, Content: t.Content})
	}
	return out
}
