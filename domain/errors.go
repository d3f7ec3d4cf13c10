package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrOAuthOnly          = errors.New("account uses oauth login")
	ErrInvalidToken       = errors.New("invalid token")
	ErrOAuthDisabled      = errors.New("oauth login is not configured")
)

// ProviderError is a raw, unclassified failure reported by an upstream AI
// provider or the transport in front of it.
type ProviderError struct {
	Provider   string
	Model      string
	HTTPStatus int
	// Code is the provider status code, e.g. RESOURCE_EXHAUSTED or insufficient_quota.
	Code string
	// Reason is the machine-readable reason from the error details, if any.
	Reason string
	// Message is the provider's own message. Empty for transport failures.
	Message string
	// RetryAfter is the provider's retry hint as received ("37s", "60").
	RetryAfter string
	QuotaIDs   []string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s %s: status %d %s: %s", e.Provider, e.Model, e.HTTPStatus, e.Code, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Model, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
