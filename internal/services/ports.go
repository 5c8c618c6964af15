package services

import (
	"context"
	"errors"
	"time"

	"iazeconnect/internal/gateway"
	"iazeconnect/internal/models"
)

var (
	ErrConnectionNotFound     = errors.New("conexão não encontrada")
	ErrConnectionExists       = errors.New("já existe uma conexão com esse nome de instância")
	ErrConnectionNotConnected = errors.New("conexão não está conectada")
	ErrAlreadyConnected       = errors.New("conexão já está conectada")
	ErrTicketNotFound         = errors.New("ticket não encontrado")
	ErrNoConnectionForTicket  = errors.New("ticket sem conexão de WhatsApp")
	ErrFlowSessionNotFound    = errors.New("sessão de fluxo não encontrada")
	ErrCredentialsRejected    = errors.New("API de credenciais recusou o pedido")
)

// Gateway is what the services need from the messaging gateway
type Gateway interface {
	ConnectionState(ctx context.Context, instance gateway.Instance) gateway.State
	FetchMessages(ctx context.Context, instance gateway.Instance, limit int) ([]gateway.Message, error)
	CreateInstance(ctx context.Context, instance gateway.Instance) error
	ConnectQR(ctx context.Context, instance gateway.Instance) (string, error)
	DeleteInstance(ctx context.Context, instance gateway.Instance) error
	SendText(ctx context.Context, instance gateway.Instance, number, text string) (string, error)
}

// Notifier entrega eventos ao vivo para as sessões de atendentes de um tenant
type Notifier interface {
	Notify(tenantID string, event interface{}) error
}

// MessageEventPayload is the message part of a new_message event
type MessageEventPayload struct {
	ID        string            `json:"id"`
	TicketID  string            `json:"ticket_id"`
	FromType  models.SenderType `json:"from_type"`
	Text      string            `json:"text"`
	CreatedAt time.Time         `json:"created_at"`
}

type MessageEvent struct {
	Type    string              `json:"type"`
	Message MessageEventPayload `json:"message"`
}

// NewMessageEvent monta o evento "new_message" de uma mensagem gravada
func NewMessageEvent(message *models.Message) MessageEvent {
	return MessageEvent{
		Type: "new_message",
		Message: MessageEventPayload{
			ID:        message.ID,
			TicketID:  message.TicketID,
			FromType:  message.FromType,
			Text:      message.Text,
			CreatedAt: message.CreatedAt,
		},
	}
}
