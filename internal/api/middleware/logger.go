package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the correlation ID of a request.
const RequestIDHeader = "X-Request-ID"

// RequestIDContextKey is the context key for the request's correlation ID.
const RequestIDContextKey ContextKey = "request_id"

const maxRequestIDLength = 128

// sensitiveParams lists query parameter names whose values are redacted from logs.
var sensitiveParams = map[string]bool{
	"token":          true,
	"secret":         true,
	"webhook_secret": true,
	"password":       true,
	"api_key":        true,
}

func redactQueryString(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "[UNPARSEABLE]"
	}

	redacted := false
	for name, values := range params {
		if !sensitiveParams[strings.ToLower(name)] {
			continue
		}
		for i := range values {
			values[i] = "[REDACTED]"
		}
		redacted = true
	}
	if !redacted {
		return rawQuery
	}
	return params.Encode()
}

// requestID returns the caller's X-Request-ID when it is usable, else a new UUID.
func requestID(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
	if id == "" || len(id) > maxRequestIDLength {
		return uuid.NewString()
	}
	return id
}

// GetRequestID returns the correlation ID assigned by RequestLogger.
func GetRequestID(c *gin.Context) string {
	return c.GetString(string(RequestIDContextKey))
}

// RequestLogger assigns each request a correlation ID, echoes it in the
// response and logs the request when it completes.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()

	return func(c *gin.Context) {
		start := time.Now()
		id := requestID(c)
		c.Set(string(RequestIDContextKey), id)
		c.Header(RequestIDHeader, id)

		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		event = event.
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Str("query", redactQueryString(c.Request.URL.RawQuery)).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size())

		if orgID, ok := GetOrgID(c); ok {
			event = event.Str("org_id", orgID.String())
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			event = event.Strs("errors", errs.Errors())
		}
		event.Msg("request")
	}
}
