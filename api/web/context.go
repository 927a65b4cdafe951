package web

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gomantics/gitmcp/domains/executor"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// StatusClientClosedRequest is returned for cancelled invocations.
const StatusClientClosedRequest = 499

// MIMEApplicationNDJSON is the content type of event streams.
const MIMEApplicationNDJSON = "application/x-ndjson"

// HeaderInvocationID carries the invocation id of tool responses.
const HeaderInvocationID = "X-Invocation-ID"

// Context wraps echo.Context with additional fields
type Context struct {
	echo.Context
	L *zap.Logger
}

// HandlerFunc is a handler function that uses our custom Context
type HandlerFunc func(ctx Context) error

// Wrap wraps a handler function to use our custom context
func Wrap(h HandlerFunc, l *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)

		ctx := Context{
			Context: c,
			L:       l.With(zap.String("request_id", rid)),
		}

		return h(ctx)
	}
}

// Error sends an error response
func (c Context) Error(status int, message string) error {
	return c.JSON(status, map[string]string{
		"error": message,
	})
}

// BadRequest sends a 400 error
func (c Context) BadRequest(message string) error {
	return c.Error(http.StatusBadRequest, message)
}

// NotFound sends a 404 error
func (c Context) NotFound(message string) error {
	return c.Error(http.StatusNotFound, message)
}

// OK sends a 200 response with data
func (c Context) OK(data any) error {
	return c.JSON(http.StatusOK, data)
}

// NoContent sends a 204 response
func (c Context) NoContent() error {
	return c.Context.NoContent(http.StatusNoContent)
}

// ToolError sends a tool error with the status of its kind.
func (c Context) ToolError(err error) error {
	te := toolerr.From(err)
	status := StatusFor(te.Kind)
	if status >= http.StatusInternalServerError {
		c.L.Error("tool error", zap.Error(err))
	}
	return c.JSON(status, map[string]any{
		"error": te,
	})
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind toolerr.Kind) int {
	switch kind {
	case toolerr.KindInvalidArguments, toolerr.KindInvalidOptions:
		return http.StatusBadRequest
	case toolerr.KindNotFound, toolerr.KindRepositoryNotFound, toolerr.KindNotARepository:
		return http.StatusNotFound
	case toolerr.KindAlreadyExists, toolerr.KindConflict, toolerr.KindFailedPrecondition:
		return http.StatusConflict
	case toolerr.KindLocked:
		return http.StatusLocked
	case toolerr.KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// Stream writes the events of s as NDJSON, flushing after each one. When
// the first event already ends the stream with an error, the error is sent
// as a plain tool error response instead.
func (c Context) Stream(s *executor.Stream[any]) error {
	first, ok := s.Next()
	if !ok {
		return c.NoContent()
	}
	if first.Type == executor.EventError {
		return c.ToolError(first.Err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, MIMEApplicationNDJSON)
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(res)
	for ev, ok := first, true; ok; ev, ok = s.Next() {
		if err := enc.Encode(ev); err != nil {
			// the client went away
			s.Cancel()
			for _, more := s.Next(); more; _, more = s.Next() {
			}
			c.L.Debug("stream write failed", zap.Error(err))
			return nil
		}
		res.Flush()
	}
	return nil
}
