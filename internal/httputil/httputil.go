// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the lookup clients.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/time/rate"
)

// ErrTransport marks a request that never produced an HTTP response:
// name resolution, connection refusal, TLS failure and the like.
var ErrTransport = errors.New("transport failure")

// ErrTimeout marks a request that exceeded its deadline.
var ErrTimeout = errors.New("request timed out")

// NewLimiter returns a limiter allowing perSecond requests with a burst of
// one. A non-positive rate disables limiting.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Do waits for a limiter token, then executes req bound to ctx. Failures
// that happen before a response arrives are wrapped with ErrTimeout or
// ErrTransport so callers can tell a dead service from a bad answer.
// Cancellation of ctx itself is returned as ctx.Err().
//
// Do does not retry. The caller owns and must close the response body.
func Do(ctx context.Context, client *http.Client, limiter *rate.Limiter, req *http.Request) (*http.Response, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	resp, err := client.Do(req.Clone(ctx))
	if err == nil {
		return resp, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if IsTimeout(err) {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrTransport, err)
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
