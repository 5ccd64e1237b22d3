package sqlstore

import (
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

type ChatRepository struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewChatRepository(db *gorm.DB, log *slog.Logger) ChatRepository {
	return ChatRepository{db: db, log: log}
}

var _ repositories.IChatRepository = ChatRepository{}

func (c ChatRepository) CreateChat(ctx context.Context, chat domain.Chat) (domain.Chat, error) {
	chat = stampChat(chat)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertChat(tx, chat, nil)
	})
	if err != nil {
		return domain.Chat{}, errors.Internal(err)
	}
	return chat, nil
}

// FindOrCreateSingleChat relies on the unique index over pair_key: if a concurrent
// writer inserted the pair first, the insert fails and the winner's chat is returned.
func (c ChatRepository) FindOrCreateSingleChat(ctx context.Context, chat domain.Chat) (domain.Chat, bool, error) {
	if len(chat.ParticipantIDs) != 2 {
		return domain.Chat{}, false, errors.ErrSingleChatSize
	}
	pair := domain.PairKey(chat.ParticipantIDs[0], chat.ParticipantIDs[1])
	chat = stampChat(chat)

	var (
		result  domain.Chat
		created bool
	)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findByPair(tx, pair)
		switch {
		case err == nil:
			result = existing
			return nil
		case !errors.Is(err, errors.ErrChatNotFound):
			return err
		}
		if err = insertChat(tx, chat, &pair); err != nil {
			return err
		}
		result, created = chat, true
		return nil
	})
	if isUniqueViolation(err) {
		existing, findErr := findByPair(c.db.WithContext(ctx), pair)
		if findErr != nil {
			return domain.Chat{}, false, errors.Internal(findErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return domain.Chat{}, false, errors.Internal(err)
	}
	return result, created, nil
}

func (c ChatRepository) FindSingleChat(ctx context.Context, userA, userB string) (domain.Chat, error) {
	chat, err := findByPair(c.db.WithContext(ctx), domain.PairKey(userA, userB))
	if err != nil {
		return domain.Chat{}, errors.Internal(err)
	}
	return chat, nil
}

func (c ChatRepository) GetChat(ctx context.Context, id string) (domain.Chat, error) {
	chat, err := loadChat(c.db.WithContext(ctx), id)
	if err != nil {
		return domain.Chat{}, errors.Internal(err)
	}
	return chat, nil
}

func (c ChatRepository) ListChatsForUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	var models []chatModel
	err := c.db.WithContext(ctx).
		Joins("JOIN chat_participants p ON p.chat_id = chats.id").
		Where("p.user_id = ?", userID).
		Order("chats.last_activity DESC, chats.created_at DESC, chats.id ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Internal(err)
	}

	ids := lo.Map(models, func(m chatModel, _ int) string { return m.ID })
	members, err := participantsByChat(c.db.WithContext(ctx), ids)
	if err != nil {
		return nil, errors.Internal(err)
	}
	chats := make([]domain.Chat, 0, len(models))
	for _, m := range models {
		chats = append(chats, toChat(m, members[m.ID]))
	}
	return chats, nil
}

func (c ChatRepository) ListChatIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.db.WithContext(ctx).Model(&chatModel{}).Pluck("id", &ids).Error; err != nil {
		return nil, errors.Internal(err)
	}
	return ids, nil
}

func (c ChatRepository) AddParticipant(ctx context.Context, chatID, userID string) (domain.Chat, error) {
	var chat domain.Chat
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if chat, err = loadChat(tx, chatID); err != nil {
			return err
		}
		if chat.HasParticipant(userID) {
			return nil
		}
		var next int
		err = tx.Model(&participantModel{}).
			Where("chat_id = ?", chatID).
			Select("COALESCE(MAX(position), -1) + 1").
			Scan(&next).Error
		if err != nil {
			return err
		}
		member := participantModel{ChatID: chatID, UserID: userID, Position: next}
		if err = tx.Create(&member).Error; err != nil {
			return err
		}
		chat.ParticipantIDs = append(chat.ParticipantIDs, userID)
		return nil
	})
	if err != nil {
		return domain.Chat{}, errors.Internal(err)
	}
	return chat, nil
}

func (c ChatRepository) RemoveParticipant(ctx context.Context, chatID, userID string) (domain.Chat, error) {
	var chat domain.Chat
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if chat, err = loadChat(tx, chatID); err != nil {
			return err
		}
		if !chat.HasParticipant(userID) {
			return nil
		}
		if len(chat.ParticipantIDs) == 1 {
			return errors.ErrLastParticipant
		}
		err = tx.Where("chat_id = ? AND user_id = ?", chatID, userID).Delete(&participantModel{}).Error
		if err != nil {
			return err
		}
		chat.ParticipantIDs = lo.Without(chat.ParticipantIDs, userID)
		return nil
	})
	if err != nil {
		return domain.Chat{}, errors.Internal(err)
	}
	return chat, nil
}

func (c ChatRepository) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&participantModel{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return false, errors.Internal(err)
	}
	return count > 0, nil
}

func (c ChatRepository) ParticipantsOf(ctx context.Context, chatID string) ([]string, error) {
	chat, err := c.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return chat.ParticipantIDs, nil
}

func stampChat(chat domain.Chat) domain.Chat {
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.LastActivity = now
	return chat
}

func insertChat(tx *gorm.DB, chat domain.Chat, pair *string) error {
	model := chatModel{
		ID:           chat.ID,
		Name:         chat.Name,
		Type:         string(chat.Type),
		PairKey:      pair,
		CreatedUnix:  chat.CreatedAt.UnixNano(),
		ActivityUnix: chat.LastActivity.UnixNano(),
	}
	if err := tx.Create(&model).Error; err != nil {
		return err
	}
	members := make([]participantModel, 0, len(chat.ParticipantIDs))
	for i, userID := range chat.ParticipantIDs {
		members = append(members, participantModel{ChatID: chat.ID, UserID: userID, Position: i})
	}
	return tx.Create(&members).Error
}

func findByPair(tx *gorm.DB, pair string) (domain.Chat, error) {
	var model chatModel
	if err := tx.First(&model, "pair_key = ?", pair).Error; err != nil {
		return domain.Chat{}, handleFindError(err, errors.ErrChatNotFound)
	}
	members, err := participantsByChat(tx, []string{model.ID})
	if err != nil {
		return domain.Chat{}, err
	}
	return toChat(model, members[model.ID]), nil
}

func loadChat(tx *gorm.DB, id string) (domain.Chat, error) {
	var model chatModel
	if err := tx.First(&model, "id = ?", id).Error; err != nil {
		return domain.Chat{}, handleFindError(err, errors.ErrChatNotFound)
	}
	members, err := participantsByChat(tx, []string{id})
	if err != nil {
		return domain.Chat{}, err
	}
	return toChat(model, members[id]), nil
}

func participantsByChat(tx *gorm.DB, chatIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}
	var rows []participantModel
	err := tx.Where("chat_id IN ?", chatIDs).Order("chat_id, position").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ChatID] = append(out[row.ChatID], row.UserID)
	}
	return out, nil
}

func toChat(model chatModel, participants []string) domain.Chat {
	return domain.Chat{
		ID:             model.ID,
		Name:           model.Name,
		Type:           domain.ChatType(model.Type),
		ParticipantIDs: participants,
		CreatedAt:      time.Unix(0, model.CreatedUnix).UTC(),
		LastActivity:   time.Unix(0, model.ActivityUnix).UTC(),
	}
}
