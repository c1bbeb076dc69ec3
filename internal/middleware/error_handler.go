package middleware

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"roastkit/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StatusClientClosedRequest is answered when the caller went away before the
// handler finished (nginx convention).
const StatusClientClosedRequest = 499

// ErrorHandler turns errors left on the context by handlers into responses.
// Clients never see the underlying error text.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		event := log.Error()
		status := http.StatusInternalServerError
		body := apierror.New("internal server error")
		switch {
		case errors.Is(err, context.Canceled):
			event, status, body = log.Warn(), StatusClientClosedRequest, nil
		case errors.Is(err, context.DeadlineExceeded):
			event, status, body = log.Warn(), http.StatusServiceUnavailable, apierror.New("request timed out")
		}

		event.
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Err(err).
			Msg("unhandled error")

		// A handler that already answered keeps its response
		if c.Writer.Written() {
			return
		}
		if body == nil {
			c.AbortWithStatus(status)
			return
		}
		c.AbortWithStatusJSON(status, body)
	}
}

// Recovery converts a panic into a 500 and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("request_id", c.GetString(RequestIDKey)).
					Str("path", c.Request.URL.Path).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New("internal server error"))
			}
		}()
		c.Next()
	}
}

// Logger writes one line per request. 5xx log at error, 4xx at warn.
// Successful health probes are not logged.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest && c.Request.URL.Path == "/health" {
			return
		}

		level := zerolog.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zerolog.WarnLevel
		}

		event := log.WithLevel(level).
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start))
		if v, ok := c.Get(ClaimsKey); ok {
			if claims, ok := v.(*JWTClaims); ok {
				event = event.Str("operator", claims.Username)
			}
		}
		event.Msg("request")
	}
}
