// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dispatch

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// UserRateLimiter caps dispatch turns per user.
//
// Description:
//
//	Maintains one token bucket per caller, keyed by the X-User-ID header
//	with the client IP as fallback. The header is set by the fronting
//	gateway, not the client: like the scopes on action definitions, it is
//	trusted but not verified here, so until authentication lands a caller
//	omitting the header is limited per IP rather than per the userId its
//	payload names. Buckets refill at limit/minute with a burst of the
//	same size. The map grows with the number of distinct callers; with
//	per-user keys that is bounded by the user population.
//
// Thread Safety: Safe for concurrent use via sync.Mutex.
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// NewUserRateLimiter creates a limiter allowing perMin turns per user per
// minute. Returns nil when perMin is zero so callers can skip the
// middleware entirely.
func NewUserRateLimiter(perMin int) *UserRateLimiter {
	if perMin <= 0 {
		return nil
	}
	return &UserRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMin,
	}
}

// Middleware returns the gin handler enforcing the limit.
func (u *UserRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-User-ID")
		if key == "" {
			key = c.ClientIP()
		}

		if !u.limiterFor(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

func (u *UserRateLimiter) limiterFor(key string) *rate.Limiter {
	u.mu.Lock()
	defer u.mu.Unlock()

	lim, ok := u.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(u.perMin)/60.0), u.perMin)
		u.limiters[key] = lim
	}
	return lim
}
