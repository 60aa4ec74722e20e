package acs_errors

import "errors"

// Cache and sync errors
var (
	ErrDuplicateKey  = errors.New("key already exists")
	ErrKeyNotFound   = errors.New("key does not exist")
	ErrInvalidThread = errors.New("chat thread is nil or has no id")
)

// Common errors
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrNotConfigured      = errors.New("not configured")
)
