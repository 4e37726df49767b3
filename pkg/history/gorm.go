package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"libratrack/pkg/apperr"
	"libratrack/pkg/models"
)

// GormStore keeps conversations in the conversations and
// conversation_turns tables.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Append(ctx context.Context, id string, turn Turn) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("id", "must be a uuid")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv := models.Conversation{ID: id}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&conv).Error; err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		row := models.ConversationTurn{
			ConversationID: id,
			Role:           turn.Role,
			Content:        turn.Content,
			CreatedAt:      turn.Timestamp,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", id).
			Update("updated_at", row.CreatedAt).Error
	})
}

func (s *GormStore) Recent(ctx context.Context, id string, n int) ([]Turn, error) {
	if _, err := uuid.Parse(id); err != nil {
		return []Turn{}, nil
	}
	query := s.db.WithContext(ctx).Where("conversation_id = ?", id).Order("id DESC")
	if n > 0 {
		query = query.Limit(n)
	}
	var rows []models.ConversationTurn
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}

	out := make([]Turn, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = toTurn(row)
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("conversation not found")
	}
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Turns", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	out := &Conversation{
		ID:        conv.ID,
		Messages:  make([]Turn, 0, len(conv.Turns)),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	for _, row := range conv.Turns {
		out.Messages = append(out.Messages, toTurn(row))
	}
	return out, nil
}

func (s *GormStore) List(ctx context.Context) ([]Summary, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Turns", func(db *gorm.DB) *gorm.DB {
			return db.Where("role = ?", "user").Order("id ASC")
		}).
		Order("updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]Summary, 0, len(convs))
	for _, conv := range convs {
		turns := make([]Turn, 0, 1)
		if len(conv.Turns) > 0 {
			turns = append(turns, toTurn(conv.Turns[0]))
		}
		out = append(out, Summary{ID: conv.ID, Preview: Preview(turns), UpdatedAt: conv.UpdatedAt})
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.ConversationTurn{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Conversation{}).Error
	})
}

func toTurn(row models.ConversationTurn) Turn {
	return Turn{Role: row.Role, Content: row.Content, Timestamp: row.CreatedAt}
}
