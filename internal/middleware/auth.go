package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"iazeconnect/internal/services"
	"iazeconnect/internal/utils"
)

// AuthMiddleware verifica o JWT do atendente e coloca tenant, usuário e papel
// no contexto.
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := utils.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			zap.L().Debug("[AUTH] Token ausente ou mal formatado", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token de autorização necessário"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			zap.L().Warn("[AUTH] Token inválido", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token inválido"})
			c.Abort()
			return
		}

		c.Set(utils.ContextTenantID, claims.TenantID)
		c.Set(utils.ContextUserID, claims.UserID)
		c.Set(utils.ContextRole, claims.Role)
		c.Next()
	}
}

// AdminMiddleware verifica se o usuário é admin
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(utils.ContextRole)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Usuário não autenticado"})
			c.Abort()
			return
		}

		if userRole != "ADMIN" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Acesso negado. Apenas administradores."})
			c.Abort()
			return
		}

		c.Next()
	}
}
