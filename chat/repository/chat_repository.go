package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adichat/backend/chat/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrChatNotFound is returned for a missing chat and for a chat owned by another user alike
var ErrChatNotFound = errors.New("chat not found")

// ChatStore is the durable home of every user's chats
type ChatStore interface {
	Create(ctx context.Context, userID string) (*models.Chat, error)
	List(ctx context.Context, userID string) ([]models.Chat, error)
	Get(ctx context.Context, chatID, userID string) (*models.Chat, error)
	Rename(ctx context.Context, chatID, userID, name string) (*models.Chat, error)
	Delete(ctx context.Context, chatID, userID string) error
	AppendMessages(ctx context.Context, chatID, userID string, messages []models.Message) (*models.Chat, error)
}

type GormChatRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db, now: time.Now}
}

// Migrate creates the chats and messages tables
func (r *GormChatRepository) Migrate() error {
	return r.db.AutoMigrate(&models.Chat{}, &models.Message{})
}

func (r *GormChatRepository) Create(ctx context.Context, userID string) (*models.Chat, error) {
	now := r.now().UTC()
	chat := &models.Chat{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      models.DefaultChatName,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Omit("Messages").Create(chat).Error; err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

func (r *GormChatRepository) List(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Messages", orderBySeq).
		Order("updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	for i := range chats {
		if chats[i].Messages == nil {
			chats[i].Messages = []models.Message{}
		}
	}
	return chats, nil
}

func (r *GormChatRepository) Get(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	return r.get(r.db.WithContext(ctx), chatID, userID)
}

func (r *GormChatRepository) get(db *gorm.DB, chatID, userID string) (*models.Chat, error) {
	var chat models.Chat
	err := db.Where("id = ? AND user_id = ?", chatID, userID).
		Preload("Messages", orderBySeq).
		First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if chat.Messages == nil {
		chat.Messages = []models.Message{}
	}
	return &chat, nil
}

func (r *GormChatRepository) Rename(ctx context.Context, chatID, userID, name string) (*models.Chat, error) {
	var chat *models.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Chat{}).
			Where("id = ? AND user_id = ?", chatID, userID).
			Updates(map[string]any{"name": name, "updated_at": r.now().UTC()})
		if res.Error != nil {
			return fmt.Errorf("rename chat: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrChatNotFound
		}
		var err error
		chat, err = r.get(tx, chatID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (r *GormChatRepository) Delete(ctx context.Context, chatID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", chatID, userID).Delete(&models.Chat{})
		if res.Error != nil {
			return fmt.Errorf("delete chat: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrChatNotFound
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("delete chat messages: %w", err)
		}
		return nil
	})
}

// AppendMessages adds messages to the end of the chat in one transaction.
// The version bump takes the chat's row lock before the next seq is read, so
// concurrent appends serialize instead of overwriting each other.
func (r *GormChatRepository) AppendMessages(ctx context.Context, chatID, userID string, messages []models.Message) (*models.Chat, error) {
	for _, m := range messages {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("append messages: invalid role %q", m.Role)
		}
	}

	var chat *models.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now().UTC()
		res := tx.Model(&models.Chat{}).
			Where("id = ? AND user_id = ?", chatID, userID).
			Updates(map[string]any{
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("lock chat: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrChatNotFound
		}

		var last struct{ MaxSeq int64 }
		if err := tx.Model(&models.Message{}).
			Select("COALESCE(MAX(seq), 0) AS max_seq").
			Where("chat_id = ?", chatID).
			Scan(&last).Error; err != nil {
			return fmt.Errorf("read last seq: %w", err)
		}

		if len(messages) > 0 {
			rows := make([]models.Message, len(messages))
			for i, m := range messages {
				if m.ID == "" {
					m.ID = uuid.NewString()
				}
				if m.Timestamp.IsZero() {
					m.Timestamp = now
				}
				m.ChatID = chatID
				m.Seq = last.MaxSeq + int64(i) + 1
				rows[i] = m
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert messages: %w", err)
			}
		}

		var err error
		chat, err = r.get(tx, chatID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func orderBySeq(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}
