/*
Copyright © 2024, 2025 Red Hat, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package utils

// Reusable bounded-retry wrapper used for all external service calls. The
// wrapper is kept separate from business logic so the callers stay
// synchronous-looking: only the classification predicate decides which
// failures are worth another attempt.

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// TransientError marks a failure of an external call that is worth another
// attempt: network errors, timeouts and 5xx responses. Well-formed error
// responses (4xx) are never wrapped in it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

// Unwrap makes errors.Is/As see through the transient marker
func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient is the retryable-error predicate used with Retry for calls to
// the directory and authorization services
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// RetrySpec parameterizes the retry wrapper
type RetrySpec struct {
	// MaxAttempts is the total number of attempts, first call included
	MaxAttempts int
	// BaseDelay is the initial backoff interval; subsequent intervals grow
	// exponentially
	BaseDelay time.Duration
	// AttemptTimeout bounds every single attempt. Zero means no per-attempt
	// bound.
	AttemptTimeout time.Duration
}

// Retry calls operation up to spec.MaxAttempts times with exponential
// backoff between attempts. A failed attempt is retried only when retryable
// classifies its error as transient; other errors are returned immediately.
// Each attempt runs under its own deadline derived from ctx when
// spec.AttemptTimeout is set, so a hung call counts as a transient failure
// rather than stalling the caller forever.
func Retry(ctx context.Context, spec RetrySpec, retryable func(error) bool, operation func(context.Context) error) error {
	attempt := 0

	wrapped := func() error {
		attempt++
		attemptCtx := ctx
		if spec.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, spec.AttemptTimeout)
			defer cancel()
		}

		err := operation(attemptCtx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max attempts", spec.MaxAttempts).
			Msg("Transient failure, will retry")
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	if spec.BaseDelay > 0 {
		expBackoff.InitialInterval = spec.BaseDelay
	}

	maxAttempts := spec.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(expBackoff, uint64(maxAttempts-1)), ctx)

	return backoff.Retry(wrapped, policy)
}
