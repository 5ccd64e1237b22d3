package sqlstore

import (
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewMessageRepository(db *gorm.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

var _ repositories.IMessageRepository = MessageRepository{}

// AppendMessage inserts the message and bumps the chat's last activity in one transaction.
// The autoincrement sequence breaks ties between equal timestamps.
func (m MessageRepository) AppendMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	message.CreatedAt = time.Now().UTC()
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&chatModel{}).
			Where("id = ?", message.ChatID).
			Update("last_activity", message.CreatedAt.UnixNano())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errors.ErrChatNotFound
		}
		model := fromMessage(message)
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Message{}, errors.Internal(err)
	}
	return message, nil
}

func (m MessageRepository) ListMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	var models []messageModel
	err := m.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Internal(err)
	}
	return toMessages(models), nil
}

func (m MessageRepository) ListMessagesPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int, error) {
	var (
		models []messageModel
		total  int64
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chats int64
		if err := tx.Model(&chatModel{}).Where("id = ?", chatID).Count(&chats).Error; err != nil {
			return err
		}
		if chats == 0 {
			return errors.ErrChatNotFound
		}
		if err := tx.Model(&messageModel{}).Where("chat_id = ?", chatID).Count(&total).Error; err != nil {
			return err
		}
		return tx.Where("chat_id = ?", chatID).
			Order("created_at DESC, seq DESC").
			Offset(page * pageSize).
			Limit(pageSize).
			Find(&models).Error
	})
	if err != nil {
		return nil, 0, errors.Internal(err)
	}
	return toMessages(models), int(total), nil
}

func (m MessageRepository) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	var model messageModel
	if err := m.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return domain.Message{}, handleFindError(err, errors.ErrMessageNotFound)
	}
	return toMessage(model), nil
}

func (m MessageRepository) DeleteMessage(ctx context.Context, id string) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&messageModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errors.ErrMessageNotFound
		}
		return tx.Where("message_id = ?", id).Delete(&receiptModel{}).Error
	})
	return errors.Internal(err)
}

// SearchMessages matches the lowered term against content_key. Both sides are folded
// by strings.ToLower, so "École" finds "école" as it does on the Badger store.
func (m MessageRepository) SearchMessages(ctx context.Context, chatID, term string) ([]domain.Message, error) {
	var models []messageModel
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	err := m.db.WithContext(ctx).
		Where(`chat_id = ? AND content_key LIKE ? ESCAPE '\'`, chatID, pattern).
		Order("created_at ASC, seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Internal(err)
	}
	return toMessages(models), nil
}

func (m MessageRepository) LastMessage(ctx context.Context, chatID string) (*domain.Message, error) {
	var models []messageModel
	err := m.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, seq DESC").
		Limit(1).
		Find(&models).Error
	if err != nil {
		return nil, errors.Internal(err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	msg := toMessage(models[0])
	return &msg, nil
}

// MarkRead inserts the missing receipts with one INSERT ... SELECT; its RowsAffected is the
// number of messages the reader hadn't read. The aggregate status update runs in the same transaction.
func (m MessageRepository) MarkRead(ctx context.Context, chatID, readerID string) (int, error) {
	var count int64
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(`INSERT INTO read_receipts (message_id, reader_id, chat_id, read_at)
			SELECT m.id, ?, m.chat_id, ? FROM messages m
			WHERE m.chat_id = ? AND m.sender_id <> ?
			AND NOT EXISTS (SELECT 1 FROM read_receipts r WHERE r.message_id = m.id AND r.reader_id = ?)`,
			readerID, time.Now().UnixNano(), chatID, readerID, readerID)
		if result.Error != nil {
			return result.Error
		}
		count = result.RowsAffected
		return tx.Model(&messageModel{}).
			Where("chat_id = ? AND sender_id <> ? AND status <> ?", chatID, readerID, domain.READ).
			Update("status", domain.READ).Error
	})
	if err != nil {
		return 0, errors.Internal(err)
	}
	return int(count), nil
}

func (m MessageRepository) MarkDelivered(ctx context.Context, chatID, userID string) (int, error) {
	result := m.db.WithContext(ctx).Model(&messageModel{}).
		Where("chat_id = ? AND sender_id <> ? AND status = ?", chatID, userID, domain.SENT).
		Update("status", domain.DELIVERED)
	if result.Error != nil {
		return 0, errors.Internal(result.Error)
	}
	return int(result.RowsAffected), nil
}

func (m MessageRepository) CountUnread(ctx context.Context, chatID, readerID string) (int, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&messageModel{}).
		Where("chat_id = ? AND sender_id <> ?", chatID, readerID).
		Where("NOT EXISTS (SELECT 1 FROM read_receipts r WHERE r.message_id = messages.id AND r.reader_id = ?)", readerID).
		Count(&count).Error
	if err != nil {
		return 0, errors.Internal(err)
	}
	return int(count), nil
}

func (m MessageRepository) DeleteMessagesBefore(ctx context.Context, chatID string, before time.Time) (int, error) {
	var count int64
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("message_id IN (?)",
			tx.Model(&messageModel{}).Select("id").Where("chat_id = ? AND created_at < ?", chatID, before.UnixNano()),
		).Delete(&receiptModel{}).Error
		if err != nil {
			return err
		}
		result := tx.Where("chat_id = ? AND created_at < ?", chatID, before.UnixNano()).Delete(&messageModel{})
		count = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, errors.Internal(err)
	}
	return int(count), nil
}

func fromMessage(message domain.Message) messageModel {
	return messageModel{
		ID:         message.ID,
		ChatID:     message.ChatID,
		SenderID:   message.SenderID,
		Content:    message.Content,
		ContentKey: strings.ToLower(message.Content),
		Type:       string(message.Type),
		Status:     string(message.Status),
		Language:   message.Language,
		SentUnix:   message.CreatedAt.UnixNano(),
	}
}

func toMessage(model messageModel) domain.Message {
	return domain.Message{
		ID:        model.ID,
		ChatID:    model.ChatID,
		SenderID:  model.SenderID,
		Content:   model.Content,
		Type:      domain.MessageType(model.Type),
		Status:    domain.MessageStatus(model.Status),
		Language:  model.Language,
		CreatedAt: time.Unix(0, model.SentUnix).UTC(),
	}
}

func toMessages(models []messageModel) []domain.Message {
	out := make([]domain.Message, 0, len(models))
	for _, model := range models {
		out = append(out, toMessage(model))
	}
	return out
}
