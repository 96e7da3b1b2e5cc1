package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/andre-fig/backoffice/services"
)

type OperatorAuthMiddleware struct {
	Auth   *services.OperatorAuthService
	Logger *zap.Logger
}

func NewOperatorAuthMiddleware(auth *services.OperatorAuthService, logger *zap.Logger) *OperatorAuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperatorAuthMiddleware{Auth: auth, Logger: logger}
}

// RequireOperator validates the bearer token. Without a configured secret every request passes.
func (m *OperatorAuthMiddleware) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Auth.Enabled() {
			c.Next()
			return
		}

		token, err := services.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		claims, err := m.Auth.ValidateToken(token)
		if err != nil {
			m.Logger.Debug("rejected operator token", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token: " + err.Error()})
			c.Abort()
			return
		}

		c.Set("user_id", claims.Subject)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)

		c.Next()
	}
}
