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
)

// ConnectionService mantém o registro de conexões alinhado com o gateway
type ConnectionService struct {
	connectionRepo *repositories.ConnectionRepository
	gateway        Gateway
	recreateWait   time.Duration
}

func NewConnectionService(connectionRepo *repositories.ConnectionRepository, gw Gateway, recreateWait time.Duration) *ConnectionService {
	return &ConnectionService{
		connectionRepo: connectionRepo,
		gateway:        gw,
		recreateWait:   recreateWait,
	}
}

// Reconcile brings the stored record in line with the gateway's live view
// and returns the resulting status. A gateway fault returns an error and
// leaves the record untouched.
func (s *ConnectionService) Reconcile(ctx context.Context, connection *models.Connection) (models.ConnectionStatus, error) {
	state := s.gateway.ConnectionState(ctx, gateway.InstanceFor(connection))

	switch state.Status {
	case models.ConnectionStatusError:
		zap.L().Warn("[RECONCILE] Gateway indisponível, pulando conexão",
			zap.String("instance", connection.InstanceName), zap.Error(state.Err))
		return connection.Status, fmt.Errorf("consultar estado de %s: %w", connection.InstanceName, state.Err)

	case models.ConnectionStatusDeleted:
		zap.L().Info("[RECONCILE] Instância sumiu do gateway, recriando", zap.String("instance", connection.InstanceName))
		if err := s.recreate(ctx, connection); err != nil {
			return connection.Status, err
		}
		return connection.Status, nil
	}

	var phone *string
	if state.Phone != "" {
		phone = &state.Phone
	} else {
		phone = connection.PhoneNumber
	}

	qrCode := connection.QRCode
	if state.Status == models.ConnectionStatusConnecting && qrCode == nil {
		if qr, err := s.gateway.ConnectQR(ctx, gateway.InstanceFor(connection)); err == nil {
			qrCode = &qr
		}
	}
	if state.Status == models.ConnectionStatusDisconnected {
		qrCode = nil
	}

	if !s.drifted(connection, state.Status, qrCode, phone) {
		return connection.Status, nil
	}

	previous := connection.Status
	if err := s.connectionRepo.UpdateStatus(connection, state.Status, qrCode, phone); err != nil {
		return previous, fmt.Errorf("atualizar status de %s: %w", connection.InstanceName, err)
	}
	if previous != connection.Status {
		zap.L().Info("[RECONCILE] Status atualizado",
			zap.String("instance", connection.InstanceName),
			zap.String("from", string(previous)),
			zap.String("to", string(connection.Status)))
	}
	return connection.Status, nil
}

func (s *ConnectionService) drifted(connection *models.Connection, status models.ConnectionStatus, qrCode, phone *string) bool {
	next := *connection
	next.ApplyStatus(status, qrCode, phone)
	return next.Status != connection.Status ||
		!sameString(next.QRCode, connection.QRCode) ||
		!sameString(next.PhoneNumber, connection.PhoneNumber)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// recreate refaz a instância no gateway e guarda o novo QR. When the gateway
// refuses, the record is marked deleted and the next cycle tries again.
func (s *ConnectionService) recreate(ctx context.Context, connection *models.Connection) error {
	instance := gateway.InstanceFor(connection)

	if err := s.gateway.CreateInstance(ctx, instance); err != nil {
		zap.L().Error("[RECONCILE] Falha ao recriar instância", zap.String("instance", connection.InstanceName), zap.Error(err))
		if updateErr := s.connectionRepo.UpdateStatus(connection, models.ConnectionStatusDeleted, nil, nil); updateErr != nil {
			return fmt.Errorf("marcar %s como deleted: %w", connection.InstanceName, updateErr)
		}
		return fmt.Errorf("recriar %s: %w", connection.InstanceName, err)
	}

	if err := wait(ctx, s.recreateWait); err != nil {
		return err
	}

	var qrCode *string
	qr, err := s.gateway.ConnectQR(ctx, instance)
	if err != nil {
		zap.L().Warn("[RECONCILE] Instância recriada sem QR", zap.String("instance", connection.InstanceName), zap.Error(err))
	} else {
		qrCode = &qr
	}

	return s.connectionRepo.UpdateStatus(connection, models.ConnectionStatusConnecting, qrCode, nil)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Create registra uma nova sessão: cria a instância no gateway, busca o QR e
// grava o registro como connecting no próximo slot do tenant.
func (s *ConnectionService) Create(ctx context.Context, tenantID string, req *models.CreateConnectionRequest) (*models.Connection, error) {
	existing, err := s.connectionRepo.GetByInstance(tenantID, req.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to check connection: %w", err)
	}
	if existing != nil {
		return nil, ErrConnectionExists
	}

	connection := &models.Connection{
		TenantID:     tenantID,
		InstanceName: req.InstanceName,
		APIKey:       req.APIKey,
		Status:       models.ConnectionStatusConnecting,
	}
	instance := gateway.InstanceFor(connection)

	if err := s.gateway.CreateInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	qr, err := s.gateway.ConnectQR(ctx, instance)
	if err != nil {
		zap.L().Warn("[CONNECTION] Instância criada sem QR", zap.String("instance", req.InstanceName), zap.Error(err))
	} else {
		connection.QRCode = &qr
	}

	slot, err := s.connectionRepo.NextSlot(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate slot: %w", err)
	}
	connection.Slot = slot

	if err := s.connectionRepo.Create(connection); err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	zap.L().Info("[CONNECTION] Conexão criada",
		zap.String("tenant_id", tenantID), zap.String("instance", connection.InstanceName), zap.Int("slot", slot))
	return connection, nil
}

// Get retrieves a tenant's connection
func (s *ConnectionService) Get(tenantID, id string) (*models.Connection, error) {
	connection, err := s.connectionRepo.GetByID(tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if connection == nil {
		return nil, ErrConnectionNotFound
	}
	return connection, nil
}

// List retrieves all connections of a tenant
func (s *ConnectionService) List(tenantID string) ([]models.Connection, error) {
	connections, err := s.connectionRepo.ListByTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return connections, nil
}

// RefreshQR pede um novo QR para uma sessão que ainda não conectou
func (s *ConnectionService) RefreshQR(ctx context.Context, tenantID, id string) (*models.Connection, error) {
	connection, err := s.Get(tenantID, id)
	if err != nil {
		return nil, err
	}
	if connection.Status == models.ConnectionStatusConnected {
		return nil, ErrAlreadyConnected
	}

	instance := gateway.InstanceFor(connection)
	qr, err := s.gateway.ConnectQR(ctx, instance)
	if errors.Is(err, gateway.ErrInstanceNotFound) {
		if err := s.recreate(ctx, connection); err != nil {
			return nil, err
		}
		return connection, nil
	}
	if errors.Is(err, gateway.ErrAlreadyConnected) {
		return nil, ErrAlreadyConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch qr code: %w", err)
	}

	if err := s.connectionRepo.UpdateStatus(connection, models.ConnectionStatusConnecting, &qr, nil); err != nil {
		return nil, fmt.Errorf("failed to save qr code: %w", err)
	}
	return connection, nil
}

// Delete remove a sessão do gateway (best-effort) e apaga o registro
func (s *ConnectionService) Delete(ctx context.Context, tenantID, id string) error {
	connection, err := s.Get(tenantID, id)
	if err != nil {
		return err
	}

	if err := s.gateway.DeleteInstance(ctx, gateway.InstanceFor(connection)); err != nil {
		zap.L().Warn("[CONNECTION] Falha ao remover instância do gateway", zap.String("instance", connection.InstanceName), zap.Error(err))
	}

	if err := s.connectionRepo.Delete(tenantID, id); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

// FindByInstance resolves the connection a gateway event refers to
func (s *ConnectionService) FindByInstance(instanceName string) (*models.Connection, error) {
	return s.connectionRepo.FindByInstanceName(instanceName)
}

// ApplyRemoteState grava um estado informado pelo gateway (webhook
// connection.update). phone may be empty.
func (s *ConnectionService) ApplyRemoteState(connection *models.Connection, status models.ConnectionStatus, phone string) error {
	phoneNumber := connection.PhoneNumber
	if phone != "" {
		phoneNumber = &phone
	}
	qrCode := connection.QRCode
	if status != models.ConnectionStatusConnecting {
		qrCode = nil
	}

	if !s.drifted(connection, status, qrCode, phoneNumber) {
		return nil
	}
	return s.connectionRepo.UpdateStatus(connection, status, qrCode, phoneNumber)
}

// ApplyQRCode stores a QR pushed by the gateway. Connected sessions ignore it.
func (s *ConnectionService) ApplyQRCode(connection *models.Connection, qrCode string) error {
	if connection.Status == models.ConnectionStatusConnected {
		return nil
	}
	return s.connectionRepo.UpdateStatus(connection, models.ConnectionStatusConnecting, &qrCode, nil)
}

// ResetDailyCounters zera os contadores de mensagens do dia
func (s *ConnectionService) ResetDailyCounters() (int64, error) {
	return s.connectionRepo.ResetDailyCounters()
}

// ListAll returns every registered connection, across tenants
func (s *ConnectionService) ListAll() ([]models.Connection, error) {
	return s.connectionRepo.ListAll()
}
