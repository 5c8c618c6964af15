package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"iazeconnect/internal/services"
)

// FlowHandler serve o fluxo de teste grátis (flow 12) da página de vendas
type FlowHandler struct {
	flowService *services.FlowService
}

func NewFlowHandler(flowService *services.FlowService) *FlowHandler {
	return &FlowHandler{flowService: flowService}
}

func (h *FlowHandler) StartSession(c *gin.Context) {
	var req struct {
		TenantID string `json:"tenant_id"`
	}
	// corpo vazio é aceito
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "JSON inválido"})
			return
		}
	}

	reply, err := h.flowService.Start(c.Request.Context(), req.TenantID)
	if err != nil {
		respondError(c, err, "Falha ao iniciar o atendimento")
		return
	}

	c.JSON(http.StatusCreated, reply)
}

func (h *FlowHandler) SendMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON inválido"})
		return
	}

	reply, err := h.flowService.HandleMessage(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		respondError(c, err, "Falha ao processar a mensagem")
		return
	}

	c.JSON(http.StatusOK, reply)
}

func (h *FlowHandler) GetSession(c *gin.Context) {
	view, err := h.flowService.Get(c.Param("id"))
	if err != nil {
		respondError(c, err, "Falha ao buscar a sessão")
		return
	}

	c.JSON(http.StatusOK, view)
}
