// Package apperror is the error taxonomy shared by services and the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig         Kind = "config_error"
	KindNotInitialized Kind = "not_initialized"
	KindConfigMissing  Kind = "config_missing"
	KindValidation     Kind = "validation_error"
	KindNotFound       Kind = "not_found"
	KindInternal       Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

var (
	ErrNotInitialized = New(KindNotInitialized, "Memory system not initialized")
	ErrConfigMissing  = New(KindConfigMissing, "Session configuration not found, please re-initialize")
)

// KindOf returns the kind of the first *Error in the chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage is the message safe to show to clients.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
