package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"iazeconnect/internal/models"
	"iazeconnect/internal/services"
)

// TicketHandler expõe a caixa de atendimento para os atendentes
type TicketHandler struct {
	ticketService *services.TicketService
}

func NewTicketHandler(ticketService *services.TicketService) *TicketHandler {
	return &TicketHandler{ticketService: ticketService}
}

// ListTickets aceita ?status=open|closed; vazio lista todos
func (h *TicketHandler) ListTickets(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}

	status := models.TicketStatus(strings.ToLower(c.Query("status")))
	tickets, err := h.ticketService.List(tenantID, status)
	if err != nil {
		respondError(c, err, "Falha ao listar tickets")
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

func (h *TicketHandler) ListMessages(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}

	messages, err := h.ticketService.Messages(tenantID, c.Param("id"))
	if err != nil {
		respondError(c, err, "Falha ao listar mensagens")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage envia uma resposta do atendente pelo WhatsApp
func (h *TicketHandler) SendMessage(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text é obrigatório"})
		return
	}

	message, err := h.ticketService.SendAgentMessage(c.Request.Context(), tenantID, c.Param("id"), req.Text)
	if err != nil {
		respondError(c, err, "Falha ao enviar mensagem")
		return
	}

	c.JSON(http.StatusCreated, message)
}
