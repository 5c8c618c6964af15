package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"iazeconnect/internal/models"
)

type FlowRepository struct {
	db *gorm.DB
}

func NewFlowRepository(db *gorm.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

func (r *FlowRepository) CreateSession(session *models.FlowSession) error {
	return r.db.Create(session).Error
}

// GetSession retrieves a flow session by id
func (r *FlowRepository) GetSession(id string) (*models.FlowSession, error) {
	var session models.FlowSession

	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// SaveSession overwrites the session document (last writer wins)
func (r *FlowRepository) SaveSession(session *models.FlowSession) error {
	return r.db.Save(session).Error
}

// SetHandoffTicket records the ticket a session was handed over to
func (r *FlowRepository) SetHandoffTicket(sessionID, ticketID string) error {
	return r.db.Model(&models.FlowSession{}).Where("id = ?", sessionID).UpdateColumn("handoff_ticket_id", ticketID).Error
}

// FindRecentIssued returns the latest session of the tenant for a contact
// number whose credentials were issued after since, excluding the given session.
func (r *FlowRepository) FindRecentIssued(tenantID, contactNumber string, since time.Time, excludeID string) (*models.FlowSession, error) {
	var session models.FlowSession

	err := r.db.Where("tenant_id = ? AND contact_number = ? AND credentials_issued_at IS NOT NULL AND credentials_issued_at >= ? AND id <> ?",
		tenantID, contactNumber, since.UTC(), excludeID).
		Order("credentials_issued_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// AppendMessage registra uma mensagem da sessão do fluxo
func (r *FlowRepository) AppendMessage(sessionID string, from models.SenderType, text string) (*models.FlowMessage, error) {
	message := &models.FlowMessage{
		SessionID: sessionID,
		FromType:  from,
		Text:      text,
	}
	if err := r.db.Create(message).Error; err != nil {
		return nil, err
	}
	return message, nil
}

// ListMessages returns the flow history ordered by time
func (r *FlowRepository) ListMessages(sessionID string) ([]models.FlowMessage, error) {
	var messages []models.FlowMessage

	err := r.db.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteStaleSessions apaga sessões antigas que nunca receberam credenciais
func (r *FlowRepository) DeleteStaleSessions(before time.Time) (int64, error) {
	var ids []string
	err := r.db.Model(&models.FlowSession{}).
		Where("credentials_issued_at IS NULL AND created_at < ?", before.UTC()).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	return int64(len(ids)), r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id IN ?", ids).Delete(&models.FlowMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.FlowSession{}).Error
	})
}

// RecordPendingHandoff enfileira (ou reabre) uma entrega de handoff
func (r *FlowRepository) RecordPendingHandoff(sessionID string, cause error) error {
	message := cause.Error()

	var pending models.PendingHandoff
	err := r.db.Where("flow_session_id = ?", sessionID).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(&models.PendingHandoff{
			FlowSessionID: sessionID,
			Attempts:      1,
			LastError:     &message,
		}).Error
	}
	if err != nil {
		return err
	}

	return r.db.Model(&pending).Updates(map[string]interface{}{
		"attempts":     gorm.Expr("attempts + ?", 1),
		"last_error":   message,
		"delivered_at": nil,
	}).Error
}

// ListUndeliveredHandoffs returns outbox entries still waiting for delivery
func (r *FlowRepository) ListUndeliveredHandoffs(limit int) ([]models.PendingHandoff, error) {
	var pending []models.PendingHandoff

	err := r.db.Where("delivered_at IS NULL").Order("created_at ASC").Limit(limit).Find(&pending).Error
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *FlowRepository) MarkHandoffDelivered(id string) error {
	return r.db.Model(&models.PendingHandoff{}).Where("id = ?", id).Update("delivered_at", time.Now().UTC()).Error
}

// MarkHandoffFailed registra mais uma tentativa falha
func (r *FlowRepository) MarkHandoffFailed(id string, cause error) error {
	return r.db.Model(&models.PendingHandoff{}).Where("id = ?", id).Updates(map[string]interface{}{
		"attempts":   gorm.Expr("attempts + ?", 1),
		"last_error": cause.Error(),
	}).Error
}

// DeleteDeliveredHandoffs purges outbox entries delivered before the cutoff
func (r *FlowRepository) DeleteDeliveredHandoffs(before time.Time) (int64, error) {
	result := r.db.Where("delivered_at IS NOT NULL AND delivered_at < ?", before.UTC()).Delete(&models.PendingHandoff{})
	return result.RowsAffected, result.Error
}
