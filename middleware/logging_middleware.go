package middleware

import (
	"context"
	"time"

	"github.com/tliron/commonlog"

	"temctl/message"
)

var log = commonlog.GetLogger("temctl.middleware")

// LoggingMiddleware logs every operation with its duration, and the error
// descriptor of failed ones.
func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)
			duration := time.Since(start)

			if err := resp.Err(); err != nil {
				log.Infof("%s failed after %s: %s", req.Operation, duration, err)
			} else {
				log.Debugf("%s took %s", req.Operation, duration)
			}
			return resp
		}
	}
}
