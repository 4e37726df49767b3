package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libratrack/pkg/assistant"
	"libratrack/pkg/history"
	"libratrack/pkg/intent"
	"libratrack/pkg/prompt"
)

type fakeAsker struct {
	reply    string
	err      error
	requests []assistant.Request
}

func (f *fakeAsker) Ask(_ context.Context, req assistant.Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func newSession(t *testing.T, api asker) (*chatSession, *bytes.Buffer) {
	t.Helper()
	store, err := history.OpenBoltStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var out bytes.Buffer
	return &chatSession{api: api, store: store, out: &out, now: time.Now}, &out
}

func TestChatStartStoresGreeting(t *testing.T) {
	s, out := newSession(t, &fakeAsker{})
	ctx := context.Background()

	require.NoError(t, s.start(ctx))
	require.NotEmpty(t, s.id)
	assert.Contains(t, out.String(), history.GreetingMessage)

	conv, err := s.store.Get(ctx, s.id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, prompt.RoleAssistant, conv.Messages[0].Role)
}

func TestChatSendAttachesHistoryAndAction(t *testing.T) {
	api := &fakeAsker{reply: "Try Dune."}
	s, _ := newSession(t, api)
	ctx := context.Background()
	require.NoError(t, s.start(ctx))

	reply, err := s.send(ctx, "I'm looking for science fiction")
	require.NoError(t, err)
	assert.Equal(t, "Try Dune.", reply)

	require.Len(t, api.requests, 1)
	req := api.requests[0]
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "I'm looking for science fiction", req.Messages[0].Content)
	require.NotNil(t, req.Action)
	assert.Equal(t, intent.ActionSearch, req.Action.Type)
	require.Len(t, req.ConversationHistory, 1)
	assert.Equal(t, history.GreetingMessage, req.ConversationHistory[0].Content)

	conv, err := s.store.Get(ctx, s.id)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 3)
}

func TestChatHistoryIsCapped(t *testing.T) {
	api := &fakeAsker{reply: "ok"}
	s, _ := newSession(t, api)
	ctx := context.Background()
	require.NoError(t, s.start(ctx))

	for i := 0; i < 8; i++ {
		_, err := s.send(ctx, "hello")
		require.NoError(t, err)
	}
	last := api.requests[len(api.requests)-1]
	assert.Len(t, last.ConversationHistory, prompt.MaxHistory)
}

func TestChatGatewayFailureApologizes(t *testing.T) {
	s, out := newSession(t, &fakeAsker{err: errors.New("gateway down")})
	ctx := context.Background()
	require.NoError(t, s.start(ctx))

	reply, err := s.send(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, assistant.Apology, reply)
	assert.Contains(t, out.String(), "gateway down")

	turns, err := s.store.Recent(ctx, s.id, 1)
	require.NoError(t, err)
	assert.Equal(t, assistant.Apology, turns[0].Content)
}

func TestChatClearStartsOver(t *testing.T) {
	s, _ := newSession(t, &fakeAsker{reply: "ok"})
	ctx := context.Background()
	require.NoError(t, s.start(ctx))
	old := s.id
	_, err := s.send(ctx, "hello")
	require.NoError(t, err)

	require.NoError(t, s.clear(ctx))
	assert.NotEqual(t, old, s.id)

	_, err = s.store.Get(ctx, old)
	assert.Error(t, err)
	conv, err := s.store.Get(ctx, s.id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, history.ClearedMessage, conv.Messages[0].Content)
}

func TestChatRunLoop(t *testing.T) {
	api := &fakeAsker{reply: "Here you go."}
	s, out := newSession(t, api)

	in := strings.NewReader("popular books\n\n/clear\nhello\n/quit\nnever sent\n")
	require.NoError(t, s.run(context.Background(), in))

	assert.Len(t, api.requests, 2)
	assert.Equal(t, intent.ActionPopular, api.requests[0].Action.Type)
	require.Len(t, api.requests[1].ConversationHistory, 1, "cleared history is not sent")
	assert.Equal(t, history.ClearedMessage, api.requests[1].ConversationHistory[0].Content)
	assert.Contains(t, out.String(), history.ClearedMessage)
}

func TestChatResume(t *testing.T) {
	s, _ := newSession(t, &fakeAsker{reply: "ok"})
	ctx := context.Background()
	require.NoError(t, s.start(ctx))
	_, err := s.send(ctx, "hello")
	require.NoError(t, err)

	var out bytes.Buffer
	resumed := &chatSession{api: s.api, store: s.store, id: s.id, out: &out, now: time.Now}
	require.NoError(t, resumed.start(ctx))
	assert.Contains(t, out.String(), "user: hello")

	missing := &chatSession{api: s.api, store: s.store, id: history.NewID(), out: &out, now: time.Now}
	assert.Error(t, missing.start(ctx))
}
