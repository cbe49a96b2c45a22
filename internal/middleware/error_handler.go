package middleware

import (
	"errors"

	apiError "site-builder/internal/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next() // Execute the handler first

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var apiErr *apiError.APIError
		if !errors.As(err, &apiErr) {
			// raw errors we didn't wrap are internal
			apiErr = apiError.Internal(err)
		}

		fields := []zap.Field{
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.Int("status", apiErr.Status),
			zap.String("message", apiErr.Message),
		}
		if apiErr.Internal != nil {
			fields = append(fields, zap.Error(apiErr.Internal))
		}
		if apiErr.Status >= 500 {
			log.Error("request failed", fields...)
		} else {
			log.Info("request rejected", fields...)
		}

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(apiErr.Status, apiErr)
	}
}
