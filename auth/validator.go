package auth

import (
	"chat-core/errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type RegisterRequest struct {
	Email    string `validate:"required,email,max=254"`
	Username string `validate:"required,min=3,max=32,excludesall=@:/"`
	Password string `validate:"required,min=12,max=72"`
}

func ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}

	if strings.ContainsFunc(req.Username, unicode.IsSpace) {
		return errors.ErrInvalidUsername
	}
	if !isPasswordComplex(req.Password) {
		return errors.ErrInvalidPassword
	}
	return nil
}

type usernameRequest struct {
	Username string `validate:"required,min=3,max=32,excludesall=@:/"`
}

func ValidateUsername(username string) error {
	if err := validate.Struct(usernameRequest{Username: username}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidUsername, err)
	}
	if strings.ContainsFunc(username, unicode.IsSpace) {
		return errors.ErrInvalidUsername
	}
	return nil
}

// ValidateStruct applies the `validate` tags of any request DTO.
func ValidateStruct(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}

func isPasswordComplex(s string) bool {
	var (
		hasUpper   = false
		hasLower   = false
		hasNumber  = false
		hasSpecial = false
	)
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
