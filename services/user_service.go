package services

import (
	"chat-core/auth"
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"
	"context"
	"log/slog"
	"strings"
)

const maxUserSearchResults = 20

type IUserService interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	SearchUsers(ctx context.Context, term string) ([]domain.User, error)
	UpdateUsername(ctx context.Context, userID, username string) (domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

type UserService struct {
	log   *slog.Logger
	users repositories.IUserRepository
}

func NewUserService(log *slog.Logger, users repositories.IUserRepository) *UserService {
	return &UserService{log: log, users: users}
}

func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// SearchUsers matches usernames containing the term, case-insensitively.
func (s *UserService) SearchUsers(ctx context.Context, term string) ([]domain.User, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.ErrBlankSearchTerm
	}
	return s.users.SearchUsers(ctx, term, maxUserSearchResults)
}

func (s *UserService) UpdateUsername(ctx context.Context, userID, username string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if err := auth.ValidateUsername(username); err != nil {
		return domain.User{}, err
	}
	return s.users.UpdateUsername(ctx, userID, username)
}

// DeleteUser removes the account. Chats and messages stay, the id just no longer resolves.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.log.Info("User deleted", "user_id", userID)
	return nil
}
