package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"iazeconnect/internal/models"
)

type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create persists a new connection, normalizing its status fields first
func (r *ConnectionRepository) Create(connection *models.Connection) error {
	connection.Normalize()
	return r.db.Create(connection).Error
}

// GetByID retrieves a tenant's connection
func (r *ConnectionRepository) GetByID(tenantID, id string) (*models.Connection, error) {
	var connection models.Connection

	err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&connection).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &connection, nil
}

// GetByInstance retrieves a tenant's connection by instance name
func (r *ConnectionRepository) GetByInstance(tenantID, instanceName string) (*models.Connection, error) {
	var connection models.Connection

	err := r.db.Where("tenant_id = ? AND instance_name = ?", tenantID, instanceName).First(&connection).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &connection, nil
}

// FindByInstanceName looks a connection up by instance name alone (webhooks
// only carry the instance). The oldest registration wins.
func (r *ConnectionRepository) FindByInstanceName(instanceName string) (*models.Connection, error) {
	var connection models.Connection

	err := r.db.Where("instance_name = ?", instanceName).Order("created_at ASC").First(&connection).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &connection, nil
}

// ListByTenant retrieves all connections of a tenant
func (r *ConnectionRepository) ListByTenant(tenantID string) ([]models.Connection, error) {
	var connections []models.Connection

	err := r.db.Where("tenant_id = ?", tenantID).Order("slot ASC").Find(&connections).Error
	if err != nil {
		return nil, err
	}

	return connections, nil
}

// ListAll retrieves every registered connection (polling loop)
func (r *ConnectionRepository) ListAll() ([]models.Connection, error) {
	var connections []models.Connection

	err := r.db.Order("created_at ASC").Find(&connections).Error
	if err != nil {
		return nil, err
	}

	return connections, nil
}

// NextSlot returns the next free rotation slot of a tenant
func (r *ConnectionRepository) NextSlot(tenantID string) (int, error) {
	var maxSlot int

	err := r.db.Model(&models.Connection{}).
		Where("tenant_id = ?", tenantID).
		Select("COALESCE(MAX(slot), 0)").
		Row().
		Scan(&maxSlot)
	if err != nil {
		return 0, err
	}

	return maxSlot + 1, nil
}

// UpdateStatus changes the status of a connection and touches last_activity.
// The QR code and phone number are normalized against the new status, and
// connection is updated in place.
func (r *ConnectionRepository) UpdateStatus(connection *models.Connection, status models.ConnectionStatus, qrCode, phoneNumber *string) error {
	now := time.Now().UTC()

	next := *connection
	next.ApplyStatus(status, qrCode, phoneNumber)

	err := r.db.Model(&models.Connection{}).Where("id = ?", connection.ID).Updates(map[string]interface{}{
		"status":        next.Status,
		"qr_code":       next.QRCode,
		"phone_number":  next.PhoneNumber,
		"last_activity": now,
		"updated_at":    now,
	}).Error
	if err != nil {
		return err
	}

	next.LastActivity = &now
	next.UpdatedAt = now
	*connection = next
	return nil
}

// IncrementReceived bumps the daily received counter of a connection
func (r *ConnectionRepository) IncrementReceived(id string) error {
	return r.increment(id, "messages_received_today")
}

// IncrementSent bumps the daily sent counter of a connection
func (r *ConnectionRepository) IncrementSent(id string) error {
	return r.increment(id, "messages_sent_today")
}

func (r *ConnectionRepository) increment(id, column string) error {
	now := time.Now().UTC()
	return r.db.Model(&models.Connection{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		column:          gorm.Expr(column+" + ?", 1),
		"last_activity": now,
	}).Error
}

// ResetDailyCounters zera os contadores diários de todas as conexões
func (r *ConnectionRepository) ResetDailyCounters() (int64, error) {
	result := r.db.Model(&models.Connection{}).Where("1 = 1").UpdateColumns(map[string]interface{}{
		"messages_received_today": 0,
		"messages_sent_today":     0,
	})
	return result.RowsAffected, result.Error
}

// Delete removes a tenant's connection
func (r *ConnectionRepository) Delete(tenantID, id string) error {
	return r.db.Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.Connection{}).Error
}

// Save writes every column of a connection (used by repair tooling)
func (r *ConnectionRepository) Save(connection *models.Connection) error {
	connection.Normalize()
	return r.db.Save(connection).Error
}
