package app

import "errors"

var (
	ErrThreadNotFound       = errors.New("thread not found")
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrUnknownProvider indicates a provider name with no registered adapter.
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrEmptyMessage       = errors.New("message is required")
	ErrNoProviders        = errors.New("at least one provider is required")
	ErrDuplicateProvider  = errors.New("duplicate provider")
	ErrCredentialNotFound = errors.New("api key not found")
	ErrInvalidInput       = errors.New("invalid input")
)
