package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/newsgraph/extractor/pkg/apperrors"
	"github.com/newsgraph/extractor/pkg/jobtracker"
)

// writeError maps err to an HTTP status via apperrors.HTTPStatus and
// writes the errorResponse envelope, following the teacher's
// mapServiceError pattern.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, jobtracker.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "job not found"})
		return
	}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		c.JSON(apperrors.HTTPStatus(err), errorResponse{Error: appErr.Message, SupportCode: appErr.SupportCode})
		return
	}

	slog.Error("unexpected api error", "error", err)
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}
