package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"libratrack/pkg/assistant"
	"libratrack/pkg/history"
	"libratrack/pkg/intent"
	"libratrack/pkg/prompt"
)

var chatConversation string

type asker interface {
	Ask(ctx context.Context, req assistant.Request) (string, error)
}

// chatSession keeps the conversation on this machine and sends the gateway
// one stateless turn at a time, with the recent turns attached.
type chatSession struct {
	api   asker
	store history.Store
	id    string
	out   io.Writer
	now   func() time.Time
}

func (s *chatSession) say(ctx context.Context, role, content string) error {
	return s.store.Append(ctx, s.id, history.Turn{Role: role, Content: content, Timestamp: s.now()})
}

// start resumes s.id when it is set and otherwise opens a new conversation
// with the greeting.
func (s *chatSession) start(ctx context.Context) error {
	if s.id != "" {
		conv, err := s.store.Get(ctx, s.id)
		if err != nil {
			return err
		}
		for _, t := range conv.Messages {
			fmt.Fprintf(s.out, "%s: %s\n", t.Role, t.Content)
		}
		return nil
	}
	return s.open(ctx, history.GreetingMessage)
}

func (s *chatSession) open(ctx context.Context, greeting string) error {
	s.id = history.NewID()
	if err := s.say(ctx, prompt.RoleAssistant, greeting); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "assistant: %s\n", greeting)
	return nil
}

// send answers one user message. Gateway failures become the apology so the
// conversation can go on.
func (s *chatSession) send(ctx context.Context, content string) (string, error) {
	past, err := s.store.Recent(ctx, s.id, prompt.MaxHistory)
	if err != nil {
		return "", err
	}
	if err := s.say(ctx, prompt.RoleUser, content); err != nil {
		return "", err
	}

	reply, err := s.api.Ask(ctx, assistant.Request{
		Messages:            []prompt.Message{{Role: prompt.RoleUser, Content: content}},
		Action:              intent.Classify(content),
		ConversationHistory: assistant.ToMessages(past),
	})
	if err != nil {
		fmt.Fprintf(s.out, "(error: %v)\n", err)
		reply = assistant.Apology
	}

	if err := s.say(ctx, prompt.RoleAssistant, reply); err != nil {
		return "", err
	}
	fmt.Fprintf(s.out, "assistant: %s\n", reply)
	return reply, nil
}

func (s *chatSession) clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.id); err != nil {
		return err
	}
	return s.open(ctx, history.ClearedMessage)
}

// run reads lines until EOF or /quit.
func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	if err := s.start(ctx); err != nil {
		return err
	}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := s.clear(ctx); err != nil {
				return err
			}
			continue
		}
		if _, err := s.send(ctx, line); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the library assistant",
	Long: `Start an interactive chat with the library assistant.

Type /clear to start over and /quit to leave. Use --conversation to resume a
conversation listed by "libractl conversations list".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.OpenBoltStore(historyPath())
		if err != nil {
			return err
		}
		defer store.Close()

		session := &chatSession{
			api:   newClient(),
			store: store,
			id:    chatConversation,
			out:   cmd.OutOrStdout(),
			now:   time.Now,
		}
		return session.run(cmd.Context(), cmd.InOrStdin())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "conversation id to resume")
}
