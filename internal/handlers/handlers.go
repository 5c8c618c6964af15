package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"iazeconnect/internal/services"
	"iazeconnect/internal/utils"
)

// tenantFrom reads the tenant set by the auth middleware, answering 401 when
// it is missing.
func tenantFrom(c *gin.Context) (string, bool) {
	tenantID, err := utils.GetTenantIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Usuário não autenticado"})
		return "", false
	}
	return tenantID, true
}

// respondError traduz erros dos serviços para respostas HTTP. Internal
// errors are logged and answered with the generic message.
func respondError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, services.ErrConnectionNotFound),
		errors.Is(err, services.ErrTicketNotFound),
		errors.Is(err, services.ErrFlowSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrConnectionExists),
		errors.Is(err, services.ErrAlreadyConnected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrConnectionNotConnected),
		errors.Is(err, services.ErrNoConnectionForTicket):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		zap.L().Error("[HTTP] "+message, zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
