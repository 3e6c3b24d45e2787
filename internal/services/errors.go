// Package services defines the business logic for conversations, orders, and
// payments, and the chat orchestration that ties the router and the agents
// together. This file centralizes service-level error values so that callers
// can check them with errors.Is.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrInvalidInput is returned when a chat request fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConversationNotFound indicates that the requested conversation does
	// not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrUnknownAgent is returned when the router yields an agent type that
	// has no executor.
	ErrUnknownAgent = errors.New("no executor for agent type")
)

// InputError is a validation failure with a user-facing message. It matches
// ErrInvalidInput.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

// Is reports whether target is ErrInvalidInput.
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(msg string) error { return &InputError{Msg: msg} }
