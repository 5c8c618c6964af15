package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"iazeconnect/internal/gateway"
	"iazeconnect/internal/models"
	"iazeconnect/internal/services"
	"iazeconnect/internal/utils"
)

// Eventos do webhook da Evolution API, já normalizados
const (
	EventMessagesUpsert   = "messages.upsert"
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdated    = "qrcode.updated"
)

// EvolutionWebhookHandler recebe os eventos empurrados pelo gateway
type EvolutionWebhookHandler struct {
	connectionService *services.ConnectionService
	ingestionService  *services.IngestionService
}

func NewEvolutionWebhookHandler(connectionService *services.ConnectionService, ingestionService *services.IngestionService) *EvolutionWebhookHandler {
	return &EvolutionWebhookHandler{
		connectionService: connectionService,
		ingestionService:  ingestionService,
	}
}

// WebhookPayload representa o payload do webhook Evolution
type WebhookPayload struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type connectionUpdateData struct {
	State string `json:"state"`
	Wuid  string `json:"wuid"`
}

type qrCodeUpdatedData struct {
	QRCode struct {
		Base64 string `json:"base64"`
		Code   string `json:"code"`
	} `json:"qrcode"`
}

// NormalizeEvent aceita MESSAGES_UPSERT e messages.upsert
func NormalizeEvent(event string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(event), "_", "."))
}

func (h *EvolutionWebhookHandler) ProcessWebhook(c *gin.Context) {
	var payload WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		zap.L().Warn("[WEBHOOK] Payload inválido", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	event := NormalizeEvent(payload.Event)
	zap.L().Debug("[WEBHOOK] Evento recebido", zap.String("event", event), zap.String("instance", payload.Instance))

	connection, err := h.connectionService.FindByInstance(payload.Instance)
	if err != nil {
		respondError(c, err, "Falha ao processar webhook")
		return
	}
	if connection == nil {
		// 200 para o gateway não reenviar
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ignored": true})
		return
	}

	switch event {
	case EventMessagesUpsert:
		messages, err := decodeUpsert(payload.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid messages.upsert data"})
			return
		}
		applied, err := h.processMessages(c, connection, messages)
		if err != nil {
			respondError(c, err, "Falha ao processar mensagens")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "applied": applied})
		return

	case EventConnectionUpdate:
		var data connectionUpdateData
		if err := json.Unmarshal(payload.Data, &data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid connection.update data"})
			return
		}
		status := gateway.MapState(data.State)
		if err := h.connectionService.ApplyRemoteState(connection, status, utils.PhoneFromJid(data.Wuid)); err != nil {
			respondError(c, err, "Falha ao atualizar conexão")
			return
		}
		zap.L().Info("[WEBHOOK] Status da conexão atualizado",
			zap.String("instance", connection.InstanceName), zap.String("status", string(connection.Status)))

	case EventQRCodeUpdated:
		var data qrCodeUpdatedData
		if err := json.Unmarshal(payload.Data, &data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid qrcode.updated data"})
			return
		}
		qr, err := gateway.QRPayload(data.QRCode.Base64, data.QRCode.Code)
		if err != nil {
			zap.L().Warn("[WEBHOOK] qrcode.updated sem QR", zap.String("instance", connection.InstanceName))
			break
		}
		if err := h.connectionService.ApplyQRCode(connection, qr); err != nil {
			respondError(c, err, "Falha ao salvar QR code")
			return
		}

	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ignored": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// decodeUpsert lê o data de um messages.upsert, que pode ser uma mensagem ou
// uma lista delas.
func decodeUpsert(data json.RawMessage) ([]gateway.Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var messages []gateway.Message
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return nil, err
		}
		return messages, nil
	}

	var message gateway.Message
	if err := json.Unmarshal(trimmed, &message); err != nil {
		return nil, err
	}
	return []gateway.Message{message}, nil
}

// processMessages aplica o lote inteiro; uma mensagem com falha não impede as
// demais. The first error is returned after the batch so the gateway
// redelivers it, and dedup keeps the siblings from being stored twice.
func (h *EvolutionWebhookHandler) processMessages(c *gin.Context, connection *models.Connection, messages []gateway.Message) (int, error) {
	applied := 0
	var firstErr error
	for i := range messages {
		ok, err := h.ingestionService.ApplySafely(c.Request.Context(), connection, &messages[i])
		if err != nil {
			zap.L().Error("[WEBHOOK] Falha ao processar mensagem",
				zap.String("instance", connection.InstanceName),
				zap.String("external_id", messages[i].Key.ID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			applied++
		}
	}
	return applied, firstErr
}
