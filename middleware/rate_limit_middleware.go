package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"temctl/device"
	"temctl/message"
)

// RateLimitMiddleware caps how many operations per second reach the device,
// using a token bucket. Rejected calls fail with RateLimited.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return message.Failure(device.Errorf(device.KindRateLimited, "rate limit exceeded for %s", req.Operation))
			}
			return next(ctx, req)
		}
	}
}
