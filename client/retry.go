// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentvault/a2a"
)

// RetryPolicy bounds [Retry].
type RetryPolicy struct {
	// MaxAttempts includes the first attempt. Zero means 3.
	MaxAttempts int
	// InitialInterval is the first delay. Zero means 200ms.
	InitialInterval time.Duration
	// MaxInterval caps every delay. Zero means 5s.
	MaxInterval time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	b.MaxInterval = 5 * time.Second
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// Retry calls op until it succeeds, fails with an error for which [a2a.IsRetryable] is false,
// ctx is done or the policy is exhausted. It returns the last error of op, or the error of ctx
// when ctx ended the loop.
//
// Transient remote agent errors are retried like connection failures. Any other remote agent
// error returns after the first attempt, as do authentication and protocol errors.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op(ctx)
		if err != nil && !a2a.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy.backOff(ctx))
}
