// Package retryx centralizes the retry policy for remote calls. Error
// classification decides retryability once, instead of per call site: only
// transient remote failures are retried; authentication failures, the remote
// login-limit condition and missing records are surfaced immediately.
package retryx

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/finvista/acusync/internal/common"
)

// Class is the retry classification of an error.
type Class int

const (
	// ClassFatal errors are never retried (bad credentials, local bugs).
	ClassFatal Class = iota
	// ClassTransient errors are retried with backoff.
	ClassTransient
	// ClassLoginLimit is surfaced with remediation guidance, not retried.
	ClassLoginLimit
	// ClassNotFound is recorded by callers, not retried.
	ClassNotFound
)

// Classify maps an error to its retry class.
func Classify(err error) Class {
	switch {
	case errors.Is(err, common.ErrTransientRemote):
		return ClassTransient
	case errors.Is(err, common.ErrLoginLimitReached):
		return ClassLoginLimit
	case errors.Is(err, common.ErrRecordNotFound):
		return ClassNotFound
	default:
		return ClassFatal
	}
}

// Policy holds the retry parameters applied uniformly by the session manager
// and the remote reader.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy retries transient remote errors up to three times with
// exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Do runs op, retrying only errors classified as transient. The context
// bounds the whole attempt sequence.
func (p Policy) Do(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval

	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if Classify(err) == ClassTransient {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}
