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

type UserRepository struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewUserRepository(db *gorm.DB, log *slog.Logger) UserRepository {
	return UserRepository{db: db, log: log}
}

var _ repositories.IUserRepository = UserRepository{}

func (u UserRepository) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	user.CreatedAt = time.Now().UTC()
	model := fromUser(user)

	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userModel{}).Where("email_key = ?", model.EmailKey).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.ErrUserAlreadyExists
		}
		if err := tx.Model(&userModel{}).Where("username_key = ?", model.UsernameKey).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.ErrUsernameTaken
		}
		return tx.Create(&model).Error
	})
	if isUniqueViolation(err) {
		return domain.User{}, errors.ErrUserAlreadyExists
	}
	if err != nil {
		return domain.User{}, errors.Internal(err)
	}
	return user, nil
}

func (u UserRepository) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	var model userModel
	if err := u.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return domain.User{}, handleFindError(err, errors.ErrUserNotFound)
	}
	return toUser(model), nil
}

func (u UserRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var model userModel
	err := u.db.WithContext(ctx).First(&model, "email_key = ?", strings.ToLower(email)).Error
	if err != nil {
		return domain.User{}, handleFindError(err, errors.ErrUserNotFound)
	}
	return toUser(model), nil
}

func (u UserRepository) UserExists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := u.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, errors.Internal(err)
	}
	return count > 0, nil
}

func (u UserRepository) SearchUsers(ctx context.Context, term string, limit int) ([]domain.User, error) {
	var models []userModel
	query := u.db.WithContext(ctx).
		Where(`username_key LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(term))+"%").
		Order("username ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, errors.Internal(err)
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, toUser(m))
	}
	return users, nil
}

func (u UserRepository) UpdateUsername(ctx context.Context, id, username string) (domain.User, error) {
	var model userModel
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			return handleFindError(err, errors.ErrUserNotFound)
		}
		var count int64
		err := tx.Model(&userModel{}).
			Where("username_key = ? AND id <> ?", strings.ToLower(username), id).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return errors.ErrUsernameTaken
		}
		model.Username = username
		model.UsernameKey = strings.ToLower(username)
		return tx.Save(&model).Error
	})
	if isUniqueViolation(err) {
		return domain.User{}, errors.ErrUsernameTaken
	}
	if err != nil {
		return domain.User{}, errors.Internal(err)
	}
	return toUser(model), nil
}

func (u UserRepository) DeleteUser(ctx context.Context, id string) error {
	result := u.db.WithContext(ctx).Where("id = ?", id).Delete(&userModel{})
	if result.Error != nil {
		return errors.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

func fromUser(user domain.User) userModel {
	return userModel{
		ID:           user.ID,
		Email:        user.Email,
		EmailKey:     strings.ToLower(user.Email),
		Username:     user.Username,
		UsernameKey:  strings.ToLower(user.Username),
		PasswordHash: user.PasswordHash,
		Roles:        strings.Join(user.Roles, ","),
		CreatedUnix:  user.CreatedAt.UnixNano(),
	}
}

func toUser(model userModel) domain.User {
	var roles []string
	if model.Roles != "" {
		roles = strings.Split(model.Roles, ",")
	}
	return domain.User{
		ID:           model.ID,
		Email:        model.Email,
		Username:     model.Username,
		PasswordHash: model.PasswordHash,
		Roles:        roles,
		CreatedAt:    time.Unix(0, model.CreatedUnix).UTC(),
	}
}
