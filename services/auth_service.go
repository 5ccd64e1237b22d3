package services

import (
	"chat-core/auth"
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type IAuthService interface {
	Login(ctx context.Context, email, password string) (Token, error)
	Register(ctx context.Context, email, username, password string) (Token, domain.User, error)
}

type TokenGenerator interface {
	GenerateToken(userID string, roles []string) (string, error)
}

type AuthService struct {
	log            *slog.Logger
	userRepository repositories.IUserRepository
	tokens         TokenGenerator
}

type Token string

func (t Token) String() string {
	return string(t)
}

func NewAuthService(log *slog.Logger, repo repositories.IUserRepository, tokens TokenGenerator) *AuthService {
	return &AuthService{log: log, userRepository: repo, tokens: tokens}
}

func (s *AuthService) Register(ctx context.Context, email, username, password string) (Token, domain.User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)

	// 1. Validate business rules (email format, username, password complexity)
	// We check this before any expensive cryptographic operation.
	if err := auth.ValidateRegister(auth.RegisterRequest{Email: email, Username: username, Password: password}); err != nil {
		return "", domain.User{}, err
	}

	// 2. Hash the password using Argon2id
	// Done in the service layer to keep the repository unaware of plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", domain.User{}, errors.Internal(err)
	}

	// 3. Persist the user with the generated hash
	user, err := s.userRepository.CreateUser(ctx, domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
	})
	if err != nil {
		return "", domain.User{}, err // ErrUserAlreadyExists or ErrUsernameTaken
	}

	// 4. Generate the initial session token
	token, err := s.tokens.GenerateToken(user.ID, user.Roles)
	if err != nil {
		s.log.Error("Token generation failed", "user_id", user.ID, "error", err)
		return "", domain.User{}, errors.ErrTokenGeneration
	}

	return Token(token), user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (Token, error) {
	// 1. Retrieve user by email from storage
	user, err := s.userRepository.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	// 3. Issue the JWT token
	token, err := s.tokens.GenerateToken(user.ID, user.Roles)
	if err != nil {
		s.log.Error("Token generation failed", "user_id", user.ID, "error", err)
		return "", errors.ErrTokenGeneration
	}

	return Token(token), nil
}
