package middleware

import (
	"errors"
	"net/http"

	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/pkg/apperror"
	"go-marketplace-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			if appErr.Code >= http.StatusInternalServerError {
				logger.Log.ErrorContext(c.Request.Context(), "request failed",
					"path", c.FullPath(), "status", appErr.Code, "error", appErr.Err, "request_id", c.GetString(requestIDKey))
			}
			response.Error(c, appErr.Code, appErr.Message, appErr.Details)
			return
		}

		// Never expose internal error details to clients.
		logger.Log.ErrorContext(c.Request.Context(), "unhandled error",
			"path", c.FullPath(), "error", err, "request_id", c.GetString(requestIDKey))
		response.Error(c, http.StatusInternalServerError, "An unexpected error occurred. Please try again later.", nil)
	}
}
