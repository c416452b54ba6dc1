package models

import (
	"errors"
)

var (
	ErrNoRecord              = errors.New("models: no matching record found")
	ErrInvalidCredentials    = errors.New("models: invalid credentials")
	ErrDuplicateEmail        = errors.New("models: duplicate email")
	ErrUserNotFound          = errors.New("models: user not found")
	ErrInvalidPassword       = errors.New("models: invalid password")
	ErrWeakPassword          = errors.New("models: password must be at least 6 characters")
	ErrMissingFields         = errors.New("All fields must be filled in")
	ErrInvalidInput          = errors.New("models: invalid input")
	ErrSessionNotFound       = errors.New("models: session not found")
	ErrSessionExpired        = errors.New("models: session expired")
	ErrInvalidResetCode      = errors.New("models: invalid or expired reset code")
	ErrInvalidResetToken     = errors.New("models: invalid or expired reset token")
	ErrTooManyResetRequests  = errors.New("models: too many password reset requests")
	ErrChatNotFound          = errors.New("models: chat not found")
	ErrNotEnoughParticipants = errors.New("models: a chat needs at least two participants")
	ErrNotGroupChat          = errors.New("models: operation allowed only for group chats")
	ErrMessageNotFound       = errors.New("models: message not found")
	ErrEmptyMessage          = errors.New("models: message text is empty")
	ErrMessageTooLong        = errors.New("models: message text is too long")
	ErrForbidden             = errors.New("models: forbidden")
	ErrProfileExists         = errors.New("models: profile already exists")
)
