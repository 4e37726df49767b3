package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"libratrack/pkg/apperr"
)

var conversationsBucket = []byte("conversations")

// BoltStore keeps each conversation as one JSON document keyed by id.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Append(_ context.Context, id string, turn Turn) error {
	if id == "" {
		return apperr.Validation("id", "is required")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		now := s.now()

		conv, err := decode(b.Get([]byte(id)))
		if err != nil {
			return err
		}
		if conv == nil {
			conv = &Conversation{ID: id, CreatedAt: now}
		}
		if turn.Timestamp.IsZero() {
			turn.Timestamp = now
		}
		conv.Messages = append(conv.Messages, turn)
		conv.UpdatedAt = now

		enc, err := json.Marshal(conv)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), enc)
	})
}

func (s *BoltStore) Recent(ctx context.Context, id string, n int) ([]Turn, error) {
	conv, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []Turn{}, nil
	}
	return lastN(conv.Messages, n), nil
}

func (s *BoltStore) Get(_ context.Context, id string) (*Conversation, error) {
	conv, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}
	return conv, nil
}

func (s *BoltStore) List(_ context.Context) ([]Summary, error) {
	var out []Summary
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).ForEach(func(k, v []byte) error {
			conv, err := decode(v)
			if err != nil || conv == nil {
				// Skip malformed entries instead of failing the whole list.
				return nil
			}
			out = append(out, Summary{ID: string(k), Preview: Preview(conv.Messages), UpdatedAt: conv.UpdatedAt})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *BoltStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Delete([]byte(id))
	})
}

func (s *BoltStore) load(id string) (*Conversation, error) {
	var conv *Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		conv, err = decode(tx.Bucket(conversationsBucket).Get([]byte(id)))
		return err
	})
	return conv, err
}

func decode(v []byte) (*Conversation, error) {
	if len(v) == 0 {
		return nil, nil
	}
	var conv Conversation
	if err := json.Unmarshal(v, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &conv, nil
}
