package models

import (
	"errors"
)

// ErrorKind classifies failures into the categories surfaced to callers.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindExpired    ErrorKind = "expired"
	KindMismatch   ErrorKind = "mismatch"
	KindUpstream   ErrorKind = "upstream"
	KindRateLimit  ErrorKind = "rate_limit"
	KindInternal   ErrorKind = "internal"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("no active challenge")
	ErrExpired         = errors.New("challenge expired")
	ErrMismatch        = errors.New("value does not match")
	ErrUpstream        = errors.New("upstream service failed")
	ErrRateLimited     = errors.New("attempt limit reached")
	ErrSessionNotFound = errors.New("session not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidState    = errors.New("invalid session state transition")
)

// KindOf maps a wrapped sentinel to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrMismatch), errors.Is(err, ErrUnauthorized):
		return KindMismatch
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	default:
		return KindInternal
	}
}
