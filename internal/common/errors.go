// Package common defines the sentinel errors and small shared helpers used
// across the engine. Callers match sentinels with errors.Is.
package common

import "errors"

var (
	// Remote errors.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrLoginLimitReached    = errors.New("remote login limit reached")
	ErrTransientRemote      = errors.New("transient remote error")
	ErrRecordNotFound       = errors.New("record not found")

	// Local errors.
	ErrPersistence = errors.New("persistence error")
	ErrorNotFound  = errors.New("not found")

	// API errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrJobNotFound  = errors.New("job not found")
)
