package middleware

import (
	"errors"
	"net/http"

	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last handler error. BaseErrors keep their code, anything else
// becomes an opaque INTERNAL response.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			if be.Code.HTTPStatus() >= http.StatusInternalServerError {
				logger.WithTrace(c.Request.Context()).Error("request failed", zap.String("path", c.FullPath()), zap.Error(last.Err))
			}
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		logger.WithTrace(c.Request.Context()).Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(last.Err))
		internal := errutil.New(errutil.StatusInternal, "internal server error").(errutil.BaseError)
		c.JSON(http.StatusInternalServerError, internal.JSON())
	}
}
