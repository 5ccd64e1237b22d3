package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds. Every error returned by the services wraps exactly one of these.
var (
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
	ErrNotFound         = fmt.Errorf("not found")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrConflict         = fmt.Errorf("conflict")
	ErrUnauthenticated  = fmt.Errorf("unauthenticated")
	ErrInternal         = fmt.Errorf("internal error")
)

var (
	ErrEmptyContent        = fmt.Errorf("%w: content is empty", ErrInvalidArgument)
	ErrEmptyParticipants   = fmt.Errorf("%w: participant list is empty", ErrInvalidArgument)
	ErrSingleChatSize      = fmt.Errorf("%w: single chat needs exactly 2 distinct participants", ErrInvalidArgument)
	ErrUnknownChatType     = fmt.Errorf("%w: unknown chat type", ErrInvalidArgument)
	ErrUnknownMessageType  = fmt.Errorf("%w: unknown message type", ErrInvalidArgument)
	ErrUnknownParticipant  = fmt.Errorf("%w: participant does not exist", ErrInvalidArgument)
	ErrSingleChatImmutable = fmt.Errorf("%w: single chat membership cannot change", ErrInvalidArgument)
	ErrLastParticipant     = fmt.Errorf("%w: group chat needs at least one participant", ErrInvalidArgument)
	ErrBlankSearchTerm     = fmt.Errorf("%w: search term is blank", ErrInvalidArgument)
	ErrInvalidPage         = fmt.Errorf("%w: page must be positive", ErrInvalidArgument)
	ErrInvalidPassword     = fmt.Errorf("%w: password does not meet requirements", ErrInvalidArgument)
	ErrInvalidUsername     = fmt.Errorf("%w: username is invalid", ErrInvalidArgument)
	ErrUnknownUser         = fmt.Errorf("%w: user does not exist", ErrInvalidArgument)

	ErrChatNotFound    = fmt.Errorf("%w: chat", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("%w: user", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("%w: message", ErrNotFound)

	ErrNotParticipant = fmt.Errorf("%w: not a participant of the chat", ErrPermissionDenied)
	ErrNotSender      = fmt.Errorf("%w: only the sender may delete a message", ErrPermissionDenied)

	ErrUserAlreadyExists = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrUsernameTaken     = fmt.Errorf("%w: username already taken", ErrConflict)
	ErrTxnConflict       = fmt.Errorf("%w: concurrent update, retry", ErrConflict)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrUnauthenticated)

	ErrTokenGeneration  = fmt.Errorf("%w: token generation failed", ErrInternal)
	ErrMalformedHash    = fmt.Errorf("%w: stored password hash is malformed", ErrInternal)
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrBackpressure     = fmt.Errorf("connection send buffer full")
	ErrEmptyWords       = fmt.Errorf("no censored word found")
)

// Internal wraps an unexpected store or driver failure, keeping the cause in the chain.
func Internal(cause error) error {
	if cause == nil {
		return nil
	}
	if KindOf(cause) != ErrInternal {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrInternal, cause)
}

// KindOf returns the kind sentinel carried by err. Unclassified errors are internal.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrInvalidArgument, ErrNotFound, ErrPermissionDenied,
		ErrConflict, ErrUnauthenticated,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}

func MapToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case ErrInvalidArgument:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrPermissionDenied:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Is and As re-export the standard helpers so callers importing this package don't shadow them.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
