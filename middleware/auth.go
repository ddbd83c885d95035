package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/bbsboard/services"
	"github.com/cppla/bbsboard/utils"
)

// Authenticate verifies the Authorization header before the body is read,
// so credential failures win over form validation. The resolved member
// number travels in the request context for the board service.
func Authenticate(identity services.Identifier, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		memberNo, err := identity.Extract(authHeader)
		if err != nil {
			logger.Debug("authentication failed", zap.String("path", ctx.Request.URL.Path), zap.Error(err))
			utils.AbortWithFailure(ctx, http.StatusUnauthorized, services.ErrUnauthenticated.Error())
			return
		}

		ctx.Request = ctx.Request.WithContext(services.ContextWithIdentity(ctx.Request.Context(), authHeader, memberNo))
		ctx.Next()
	}
}
