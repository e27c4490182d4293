package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf_unmark/actions"
	"pdf_unmark/overlay"
	"pdf_unmark/pdf"
	"pdf_unmark/processor"
	"pdf_unmark/selection"
	"pdf_unmark/session"
)

var (
	errSessionNotFound = errors.New("session not found")
	errBadRequest      = errors.New("bad request")
	errFileTooLarge    = errors.New("file too large")
)

// statusFor maps an error from the session layer to an HTTP status.
func statusFor(err error) int {
	var (
		loadErr    *pdf.DocumentLoadError
		pageErr    *pdf.PageIndexError
		serviceErr *processor.ServiceError
		maxBytes   *http.MaxBytesError
	)
	switch {
	case errors.Is(err, errSessionNotFound), errors.Is(err, overlay.ErrUnknownSelection):
		return http.StatusNotFound
	case errors.As(err, &maxBytes), errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &loadErr),
		errors.As(err, &pageErr),
		actions.IsEmptySelection(err),
		errors.Is(err, selection.ErrInvalidBBox),
		errors.Is(err, selection.ErrInvalidPage),
		errors.Is(err, selection.ErrInvalidColor),
		errors.Is(err, selection.ErrUnknownMethod),
		errors.Is(err, session.ErrUnknownPointerEvent),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoDocument),
		errors.Is(err, session.ErrProcessingInProgress),
		errors.Is(err, session.ErrStaleRender),
		errors.Is(err, overlay.ErrNoViewport):
		return http.StatusConflict
	case errors.As(err, &serviceErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": "..."} with the mapped status. Server errors
// are attached to the context for the request logger.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		_ = c.Error(err)
		msg = "internal error"
	}
	var serviceErr *processor.ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Message != "" {
		msg = serviceErr.Message
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
