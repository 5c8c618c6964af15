package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"iazeconnect/internal/gateway"
	"iazeconnect/internal/models"
	"iazeconnect/internal/repositories"
)

// TicketService serve a tela de atendimento: listagem, histórico e envio manual
type TicketService struct {
	supportRepo    *repositories.SupportRepository
	connectionRepo *repositories.ConnectionRepository
	gateway        Gateway
	notifier       Notifier
}

func NewTicketService(supportRepo *repositories.SupportRepository, connectionRepo *repositories.ConnectionRepository, gw Gateway, notifier Notifier) *TicketService {
	return &TicketService{
		supportRepo:    supportRepo,
		connectionRepo: connectionRepo,
		gateway:        gw,
		notifier:       notifier,
	}
}

func (s *TicketService) List(tenantID string, status models.TicketStatus) ([]models.Ticket, error) {
	tickets, err := s.supportRepo.ListTickets(tenantID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// Messages returns a ticket's log, checking it belongs to the tenant
func (s *TicketService) Messages(tenantID, ticketID string) ([]models.Message, error) {
	ticket, err := s.supportRepo.GetTicket(tenantID, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil {
		return nil, ErrTicketNotFound
	}

	messages, err := s.supportRepo.ListMessages(ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// SendAgentMessage envia um texto do atendente pelo WhatsApp do ticket e o
// grava no histórico.
func (s *TicketService) SendAgentMessage(ctx context.Context, tenantID, ticketID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)

	ticket, err := s.supportRepo.GetTicket(tenantID, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil {
		return nil, ErrTicketNotFound
	}

	connection, err := s.connectionFor(ticket)
	if err != nil {
		return nil, err
	}
	if connection.Status != models.ConnectionStatusConnected {
		return nil, ErrConnectionNotConnected
	}

	externalID, err := s.gateway.SendText(ctx, gateway.InstanceFor(connection), ticket.Client.Phone, text)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	message := &models.Message{
		TenantID:  tenantID,
		TicketID:  ticket.ID,
		FromType:  models.SenderAgent,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if externalID != "" {
		message.ExternalID = &externalID
	}
	if _, err := s.supportRepo.InsertMessage(message); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	if err := s.connectionRepo.IncrementSent(connection.ID); err != nil {
		zap.L().Warn("[TICKETS] Falha ao incrementar contador de envio", zap.String("instance", connection.InstanceName), zap.Error(err))
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(tenantID, NewMessageEvent(message)); err != nil {
			zap.L().Debug("[TICKETS] Falha ao notificar atendentes", zap.Error(err))
		}
	}
	return message, nil
}

// connectionFor picks the ticket's own connection, or the tenant's first
// connected one for tickets that came from the flow.
func (s *TicketService) connectionFor(ticket *models.Ticket) (*models.Connection, error) {
	if ticket.Client == nil {
		return nil, fmt.Errorf("ticket %s sem cliente", ticket.ID)
	}

	if ticket.ConnectionID != nil {
		connection, err := s.connectionRepo.GetByID(ticket.TenantID, *ticket.ConnectionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get connection: %w", err)
		}
		if connection != nil {
			return connection, nil
		}
	}

	connections, err := s.connectionRepo.ListByTenant(ticket.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	for i := range connections {
		if connections[i].Status == models.ConnectionStatusConnected {
			return &connections[i], nil
		}
	}
	return nil, ErrNoConnectionForTicket
}
