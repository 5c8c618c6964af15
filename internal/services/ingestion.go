package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"iazeconnect/internal/gateway"
	"iazeconnect/internal/models"
	"iazeconnect/internal/repositories"
	"iazeconnect/internal/utils"
)

// errAlreadyStored desfaz a transação quando a mensagem já estava gravada
var errAlreadyStored = errors.New("message already stored")

// IngestionService aplica mensagens recebidas do gateway, uma única vez cada
type IngestionService struct {
	connectionRepo *repositories.ConnectionRepository
	supportRepo    *repositories.SupportRepository
	gateway        Gateway
	processed      ProcessedSet
	notifier       Notifier
	fetchLimit     int
}

func NewIngestionService(
	connectionRepo *repositories.ConnectionRepository,
	supportRepo *repositories.SupportRepository,
	gw Gateway,
	processed ProcessedSet,
	notifier Notifier,
	fetchLimit int,
) *IngestionService {
	if fetchLimit <= 0 {
		fetchLimit = 10
	}
	return &IngestionService{
		connectionRepo: connectionRepo,
		supportRepo:    supportRepo,
		gateway:        gw,
		processed:      processed,
		notifier:       notifier,
		fetchLimit:     fetchLimit,
	}
}

// Ingest fetches the latest batch of a connected session and applies it in
// the order the gateway returned it. A failing message is logged and the
// rest of the batch still runs.
func (s *IngestionService) Ingest(ctx context.Context, connection *models.Connection) (int, error) {
	messages, err := s.gateway.FetchMessages(ctx, gateway.InstanceFor(connection), s.fetchLimit)
	if err != nil {
		return 0, fmt.Errorf("buscar mensagens de %s: %w", connection.InstanceName, err)
	}

	applied := 0
	for i := range messages {
		ok, err := s.ApplySafely(ctx, connection, &messages[i])
		if err != nil {
			zap.L().Error("[INGEST] Falha ao processar mensagem",
				zap.String("instance", connection.InstanceName),
				zap.String("external_id", messages[i].Key.ID),
				zap.Error(err))
			continue
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

// ApplySafely is ApplyMessage with a panic turned into an error
func (s *IngestionService) ApplySafely(ctx context.Context, connection *models.Connection, message *gateway.Message) (applied bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.ApplyMessage(ctx, connection, message)
}

// ApplyMessage grava uma mensagem recebida no ticket aberto do cliente.
// applied is false when the message was skipped or had already been stored.
func (s *IngestionService) ApplyMessage(ctx context.Context, connection *models.Connection, message *gateway.Message) (bool, error) {
	if message.Key.FromMe || message.IsGroupOrBroadcast() {
		return false, nil
	}

	externalID := message.Key.ID
	phone := utils.PhoneFromJid(message.Key.RemoteJid)
	text := message.Text()
	if externalID == "" || phone == "" || text == "" {
		return false, nil
	}

	tenantID := connection.TenantID
	seen, err := s.processed.Seen(ctx, tenantID, externalID)
	if err != nil {
		zap.L().Warn("[INGEST] Cache de processadas indisponível", zap.Error(err))
	}
	if seen {
		return false, nil
	}

	exists, err := s.supportRepo.MessageExists(tenantID, externalID)
	if err != nil {
		return false, fmt.Errorf("verificar mensagem: %w", err)
	}
	if exists {
		s.markProcessed(ctx, tenantID, externalID)
		return false, nil
	}

	department, err := s.supportRepo.ResolveDepartment(tenantID, connection.DepartmentName())
	if err != nil {
		return false, fmt.Errorf("resolver departamento: %w", err)
	}

	var pushName *string
	if message.PushName != "" {
		pushName = &message.PushName
	}
	client, err := s.supportRepo.ResolveClient(tenantID, phone, pushName)
	if err != nil {
		return false, fmt.Errorf("resolver cliente: %w", err)
	}

	stored := &models.Message{
		TenantID:   tenantID,
		FromType:   models.SenderClient,
		Text:       text,
		ExternalID: &externalID,
		CreatedAt:  message.Timestamp(),
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	// ticket e mensagem entram juntos; se a mensagem falhar o ticket novo some
	connectionID := connection.ID
	var created bool
	err = s.supportRepo.Transaction(func(repo *repositories.SupportRepository) error {
		ticket, isNew, err := repo.ResolveOpenTicket(tenantID, client.ID, repositories.OpenTicketAttrs{
			DepartmentID: &department.ID,
			ConnectionID: &connectionID,
			Origin:       models.TicketOriginWhatsApp,
		})
		if err != nil {
			return fmt.Errorf("resolver ticket: %w", err)
		}
		created = isNew
		stored.TicketID = ticket.ID

		inserted, err := repo.InsertMessage(stored)
		if err != nil {
			return fmt.Errorf("gravar mensagem: %w", err)
		}
		if !inserted {
			return errAlreadyStored
		}
		return nil
	})
	if errors.Is(err, errAlreadyStored) {
		s.markProcessed(ctx, tenantID, externalID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if created {
		zap.L().Info("[INGEST] Novo ticket aberto",
			zap.String("tenant_id", tenantID), zap.String("ticket_id", stored.TicketID), zap.String("phone", phone))
	}

	s.notify(tenantID, stored)

	if err := s.connectionRepo.IncrementReceived(connection.ID); err != nil {
		zap.L().Warn("[INGEST] Falha ao incrementar contador", zap.String("instance", connection.InstanceName), zap.Error(err))
	} else {
		connection.MessagesReceivedToday++
	}

	s.markProcessed(ctx, tenantID, externalID)
	return true, nil
}

func (s *IngestionService) markProcessed(ctx context.Context, tenantID, externalID string) {
	if err := s.processed.Mark(ctx, tenantID, externalID); err != nil {
		zap.L().Warn("[INGEST] Falha ao marcar mensagem processada", zap.String("external_id", externalID), zap.Error(err))
	}
}

// notify is best-effort: a failed broadcast never fails the ingestion
func (s *IngestionService) notify(tenantID string, message *models.Message) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("[INGEST] Panic ao notificar atendentes", zap.Any("panic", r))
		}
	}()
	if err := s.notifier.Notify(tenantID, NewMessageEvent(message)); err != nil {
		zap.L().Warn("[INGEST] Falha ao notificar atendentes", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}
