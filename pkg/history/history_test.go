package history

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libratrack/pkg/apperr"
	"libratrack/pkg/database"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)

	bolt, err := OpenBoltStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	return map[string]Store{
		"gorm": NewGormStore(db),
		"bolt": bolt,
	}
}

func turn(role, content string, at time.Time) Turn {
	return Turn{Role: role, Content: content, Timestamp: at}
}

func TestStoreAppendAndRecent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := NewID()
			start := time.Now().UTC().Truncate(time.Second)

			for i := 0; i < 15; i++ {
				require.NoError(t, store.Append(ctx, id, turn("user", fmt.Sprintf("message %d", i), start.Add(time.Duration(i)*time.Second))))
			}

			recent, err := store.Recent(ctx, id, 10)
			require.NoError(t, err)
			require.Len(t, recent, 10)
			for i, tr := range recent {
				assert.Equal(t, fmt.Sprintf("message %d", i+5), tr.Content)
			}

			all, err := store.Recent(ctx, id, 0)
			require.NoError(t, err)
			assert.Len(t, all, 15)

			none, err := store.Recent(ctx, NewID(), 10)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStoreGetAndDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := NewID()
			now := time.Now().UTC()

			require.NoError(t, store.Append(ctx, id, turn("assistant", GreetingMessage, now)))
			require.NoError(t, store.Append(ctx, id, turn("user", "find books about dragons", now.Add(time.Second))))

			conv, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, id, conv.ID)
			require.Len(t, conv.Messages, 2)
			assert.Equal(t, "assistant", conv.Messages[0].Role)
			assert.Equal(t, "find books about dragons", conv.Messages[1].Content)

			require.NoError(t, store.Delete(ctx, id))
			_, err = store.Get(ctx, id)
			assert.ErrorIs(t, err, apperr.ErrNotFound)

			require.NoError(t, store.Delete(ctx, id), "deleting twice is a no-op")
		})
	}
}

func TestStoreList(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			older, newer := NewID(), NewID()

			require.NoError(t, store.Append(ctx, older, turn("assistant", GreetingMessage, now)))
			require.NoError(t, store.Append(ctx, older, turn("user", "Can you recommend a good fantasy series for a long trip?", now)))
			time.Sleep(5 * time.Millisecond)
			require.NoError(t, store.Append(ctx, newer, turn("assistant", GreetingMessage, now.Add(time.Minute))))

			summaries, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, summaries, 2)

			assert.Equal(t, newer, summaries[0].ID)
			assert.Equal(t, "New conversation", summaries[0].Preview)
			assert.Equal(t, older, summaries[1].ID)
			assert.Equal(t, "Can you recommend a good fanta...", summaries[1].Preview)
		})
	}
}

func TestGormStoreRejectsMalformedID(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	store := NewGormStore(db)

	err = store.Append(context.Background(), "abc", turn("user", "hi", time.Now()))
	assert.True(t, apperr.IsValidation(err))

	_, err = store.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	id := NewID()

	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), id, Turn{Role: "user", Content: "hello"}))
	require.NoError(t, store.Close())

	store, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	conv, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.False(t, conv.Messages[0].Timestamp.IsZero())
	assert.False(t, conv.CreatedAt.IsZero())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "New conversation", Preview(nil))
	assert.Equal(t, "short", Preview([]Turn{{Role: "assistant", Content: "hi"}, {Role: "user", Content: "short"}}))
	assert.Equal(t, strings.Repeat("a", 30), Preview([]Turn{{Role: "user", Content: strings.Repeat("a", 30)}}))
	assert.Equal(t, strings.Repeat("a", 30)+"...", Preview([]Turn{{Role: "user", Content: strings.Repeat("a", 31)}}))
}
