package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"iazeconnect/internal/models"
	"iazeconnect/internal/services"
)

type ConnectionHandler struct {
	connectionService *services.ConnectionService
}

func NewConnectionHandler(connectionService *services.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{
		connectionService: connectionService,
	}
}

// ListConnections lista as sessões de WhatsApp do tenant
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}

	connections, err := h.connectionService.List(tenantID)
	if err != nil {
		respondError(c, err, "Falha ao listar conexões")
		return
	}

	c.JSON(http.StatusOK, gin.H{"connections": connections})
}

// CreateConnection cria a instância no gateway e devolve o QR
func (h *ConnectionHandler) CreateConnection(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}

	var req models.CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instance_name é obrigatório"})
		return
	}

	connection, err := h.connectionService.Create(c.Request.Context(), tenantID, &req)
	if err != nil {
		respondError(c, err, "Falha ao criar conexão")
		return
	}

	c.JSON(http.StatusCreated, connection)
}

func (h *ConnectionHandler) GetConnection(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}

	connection, err := h.connectionService.Get(tenantID, c.Param("id"))
	if err != nil {
		respondError(c, err, "Falha ao buscar conexão")
		return
	}

	c.JSON(http.StatusOK, connection)
}

// RefreshQRCode pede um novo QR para a sessão
func (h *ConnectionHandler) RefreshQRCode(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}

	connection, err := h.connectionService.RefreshQR(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		respondError(c, err, "Falha ao gerar QR code")
		return
	}

	c.JSON(http.StatusOK, connection)
}

func (h *ConnectionHandler) DeleteConnection(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}

	if err := h.connectionService.Delete(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		respondError(c, err, "Falha ao remover conexão")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conexão removida com sucesso"})
}
