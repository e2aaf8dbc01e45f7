package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mizroch-Management/ocma-sub004/internal/ai"
	"github.com/Mizroch-Management/ocma-sub004/internal/credential"
	"github.com/Mizroch-Management/ocma-sub004/internal/publisher"
)

// permanentError forces permanent classification regardless of what it
// wraps: unknown platform, bad payload, reconnect-required auth failures.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// wrapRefreshErr tags the unrecoverable refresh failure; everything else
// stays retryable (a token endpoint outage should not kill the job).
func wrapRefreshErr(err error) error {
	if errors.Is(err, credential.ErrNoRefreshToken) {
		return &permanentError{fmt.Errorf("reconnect_required: %w", err)}
	}
	return err
}

// classify buckets an attempt error into the retry taxonomy. Anything
// unrecognized (plain network errors, lock contention) is transient.
func classify(err error) publisher.Class {
	var perm *permanentError
	if errors.As(err, &perm) {
		return publisher.ClassPermanent
	}
	if errors.Is(err, credential.ErrNoRefreshToken) {
		return publisher.ClassPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return publisher.ClassTransient
	}

	var perr *publisher.Error
	if errors.As(err, &perr) {
		return perr.Classify()
	}

	var aerr *ai.Error
	if errors.As(err, &aerr) {
		switch {
		case aerr.StatusCode == 429 || aerr.StatusCode >= 500:
			return publisher.ClassTransient
		case aerr.StatusCode >= 400:
			return publisher.ClassPermanent
		default:
			return publisher.ClassTransient
		}
	}

	return publisher.ClassTransient
}
