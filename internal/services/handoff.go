package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"iazeconnect/internal/models"
	"iazeconnect/internal/repositories"
)

const handoffBatchSize = 50

// HandoffService passa uma sessão do fluxo 12 para o atendimento humano.
// Failed deliveries go to the pending_handoffs outbox and are retried by
// RetryPending.
type HandoffService struct {
	flowRepo    *repositories.FlowRepository
	supportRepo *repositories.SupportRepository
	notifier    Notifier
}

func NewHandoffService(flowRepo *repositories.FlowRepository, supportRepo *repositories.SupportRepository, notifier Notifier) *HandoffService {
	return &HandoffService{
		flowRepo:    flowRepo,
		supportRepo: supportRepo,
		notifier:    notifier,
	}
}

// Deliver hands the session over and returns the support ticket id. On
// failure the handoff is queued for retry and nil is returned.
func (s *HandoffService) Deliver(ctx context.Context, session *models.FlowSession) *string {
	ticketID, err := s.createSupportTicket(ctx, session)
	if err == nil {
		return &ticketID
	}

	zap.L().Error("[HANDOFF] Falha ao criar ticket de suporte, enfileirando",
		zap.String("flow_session_id", session.ID), zap.Error(err))
	if err := s.flowRepo.RecordPendingHandoff(session.ID, err); err != nil {
		zap.L().Error("[HANDOFF] Falha ao gravar handoff pendente", zap.String("flow_session_id", session.ID), zap.Error(err))
	}
	return nil
}

// createSupportTicket transplanta o histórico do fluxo para o ticket aberto
// do cliente. Running it again while that ticket is open adds nothing; once
// it is closed the history goes to a fresh open ticket.
func (s *HandoffService) createSupportTicket(ctx context.Context, session *models.FlowSession) (string, error) {
	if session.HandoffTicketID != nil {
		previous, err := s.supportRepo.GetTicket(session.TenantID, *session.HandoffTicketID)
		if err != nil {
			return "", fmt.Errorf("carregar ticket do handoff: %w", err)
		}
		if previous != nil && previous.Status == models.TicketStatusOpen {
			return previous.ID, nil
		}
	}
	if session.ContactNumber == nil || *session.ContactNumber == "" {
		return "", errors.New("sessão sem número de contato")
	}

	history, err := s.flowRepo.ListMessages(session.ID)
	if err != nil {
		return "", fmt.Errorf("listar mensagens do fluxo: %w", err)
	}

	client, err := s.supportRepo.ResolveClient(session.TenantID, *session.ContactNumber, nil)
	if err != nil {
		return "", fmt.Errorf("resolver cliente: %w", err)
	}
	if session.PIN != nil && *session.PIN != "" {
		if err := s.supportRepo.SetClientPIN(client, *session.PIN); err != nil {
			return "", fmt.Errorf("gravar PIN: %w", err)
		}
	}

	ticket, _, err := s.supportRepo.ResolveOpenTicket(session.TenantID, client.ID, repositories.OpenTicketAttrs{
		Origin: models.TicketOriginFlow12,
	})
	if err != nil {
		return "", fmt.Errorf("resolver ticket: %w", err)
	}

	for _, entry := range history {
		externalID := "flow12:" + ticket.ID + ":" + entry.ID
		message := &models.Message{
			TenantID:   session.TenantID,
			TicketID:   ticket.ID,
			FromType:   entry.FromType,
			Text:       entry.Text,
			ExternalID: &externalID,
			CreatedAt:  entry.CreatedAt,
		}
		inserted, err := s.supportRepo.InsertMessage(message)
		if err != nil && !inserted {
			return "", fmt.Errorf("transplantar mensagem %s: %w", entry.ID, err)
		}
		if inserted && s.notifier != nil {
			if err := s.notifier.Notify(session.TenantID, NewMessageEvent(message)); err != nil {
				zap.L().Debug("[HANDOFF] Falha ao notificar atendentes", zap.Error(err))
			}
		}
	}

	if err := s.flowRepo.SetHandoffTicket(session.ID, ticket.ID); err != nil {
		return "", fmt.Errorf("gravar ticket do handoff: %w", err)
	}
	session.HandoffTicketID = &ticket.ID

	zap.L().Info("[HANDOFF] Sessão entregue ao suporte",
		zap.String("flow_session_id", session.ID), zap.String("ticket_id", ticket.ID), zap.Int("messages", len(history)))
	return ticket.ID, nil
}

// RetryPending tenta de novo os handoffs da outbox e retorna quantos foram entregues
func (s *HandoffService) RetryPending(ctx context.Context) (int, error) {
	pending, err := s.flowRepo.ListUndeliveredHandoffs(handoffBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listar handoffs pendentes: %w", err)
	}

	delivered := 0
	for _, entry := range pending {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		session, err := s.flowRepo.GetSession(entry.FlowSessionID)
		if err != nil {
			zap.L().Error("[HANDOFF] Falha ao carregar sessão", zap.String("flow_session_id", entry.FlowSessionID), zap.Error(err))
			continue
		}
		if session == nil {
			// sessão apagada pelo cleanup, nada a entregar
			zap.L().Warn("[HANDOFF] Sessão não existe mais, descartando", zap.String("flow_session_id", entry.FlowSessionID))
			if err := s.flowRepo.MarkHandoffDelivered(entry.ID); err != nil {
				zap.L().Error("[HANDOFF] Falha ao descartar handoff", zap.Error(err))
			}
			continue
		}

		if _, err := s.createSupportTicket(ctx, session); err != nil {
			zap.L().Warn("[HANDOFF] Nova tentativa falhou",
				zap.String("flow_session_id", session.ID), zap.Int("attempts", entry.Attempts+1), zap.Error(err))
			if err := s.flowRepo.MarkHandoffFailed(entry.ID, err); err != nil {
				zap.L().Error("[HANDOFF] Falha ao registrar tentativa", zap.Error(err))
			}
			continue
		}

		if err := s.flowRepo.MarkHandoffDelivered(entry.ID); err != nil {
			zap.L().Error("[HANDOFF] Falha ao marcar entrega", zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered, nil
}
