package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"iazeconnect/internal/models"
)

// SupportRepository guarda departamentos, clientes, tickets e mensagens.
// Every resolve method is lookup-or-create, so calling it again with the same
// keys returns the same record.
type SupportRepository struct {
	db *gorm.DB
}

func NewSupportRepository(db *gorm.DB) *SupportRepository {
	return &SupportRepository{db: db}
}

// Transaction runs fn against a repository bound to one database transaction.
// Returning an error from fn rolls everything back.
func (r *SupportRepository) Transaction(fn func(repo *SupportRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&SupportRepository{db: tx})
	})
}

// ResolveDepartment busca ou cria o departamento (tenant, nome)
func (r *SupportRepository) ResolveDepartment(tenantID, name string) (*models.Department, error) {
	return firstOrCreate(r.db, models.Department{TenantID: tenantID, Name: name}, nil)
}

// ResolveClient busca ou cria o cliente (tenant, telefone). The name is only
// used when the client is created.
func (r *SupportRepository) ResolveClient(tenantID, phone string, name *string) (*models.Client, error) {
	var attrs *models.Client
	if name != nil && *name != "" {
		attrs = &models.Client{Name: name}
	}
	return firstOrCreate(r.db, models.Client{TenantID: tenantID, Phone: phone}, attrs)
}

// SetClientPIN atualiza o PIN do cliente
func (r *SupportRepository) SetClientPIN(client *models.Client, pin string) error {
	if err := r.db.Model(&models.Client{}).Where("id = ?", client.ID).Update("pin", pin).Error; err != nil {
		return err
	}
	client.PIN = &pin
	return nil
}

// OpenTicketAttrs are applied only when a new ticket has to be created
type OpenTicketAttrs struct {
	DepartmentID *string
	ConnectionID *string
	Origin       models.TicketOrigin
}

// ResolveOpenTicket returns the client's open ticket, creating one when none
// exists. created reports whether a new ticket was inserted.
func (r *SupportRepository) ResolveOpenTicket(tenantID, clientID string, attrs OpenTicketAttrs) (ticket *models.Ticket, created bool, err error) {
	ticket, err = r.findOpenTicket(tenantID, clientID)
	if err != nil || ticket != nil {
		return ticket, false, err
	}

	ticket = &models.Ticket{
		TenantID:     tenantID,
		ClientID:     clientID,
		Status:       models.TicketStatusOpen,
		DepartmentID: attrs.DepartmentID,
		ConnectionID: attrs.ConnectionID,
		Origin:       attrs.Origin,
	}
	if err := r.db.Create(ticket).Error; err != nil {
		return nil, false, err
	}
	return ticket, true, nil
}

func (r *SupportRepository) findOpenTicket(tenantID, clientID string) (*models.Ticket, error) {
	var ticket models.Ticket

	err := r.db.Where("tenant_id = ? AND client_id = ? AND status = ?", tenantID, clientID, models.TicketStatusOpen).
		Order("created_at ASC").
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

// GetTicket retrieves a tenant's ticket with its client
func (r *SupportRepository) GetTicket(tenantID, id string) (*models.Ticket, error) {
	var ticket models.Ticket

	err := r.db.Preload("Client").Where("tenant_id = ? AND id = ?", tenantID, id).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

// ListTickets lista os tickets do tenant, filtrando por status quando informado
func (r *SupportRepository) ListTickets(tenantID string, status models.TicketStatus) ([]models.Ticket, error) {
	var tickets []models.Ticket

	query := r.db.Preload("Client").Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("updated_at DESC").Find(&tickets).Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

// InsertMessage appends a message to a ticket. Messages carrying an external
// id already stored for the tenant are not inserted again; inserted is false
// in that case.
func (r *SupportRepository) InsertMessage(message *models.Message) (inserted bool, err error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(message)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	if err := r.touchTicket(message.TicketID, message.CreatedAt); err != nil {
		return true, err
	}
	return true, nil
}

func (r *SupportRepository) touchTicket(ticketID string, at time.Time) error {
	return r.db.Model(&models.Ticket{}).Where("id = ?", ticketID).Updates(map[string]interface{}{
		"last_message_at": at,
		"updated_at":      time.Now().UTC(),
	}).Error
}

// ListMessages returns a ticket's log in chronological order
func (r *SupportRepository) ListMessages(ticketID string) ([]models.Message, error) {
	var messages []models.Message

	err := r.db.Where("ticket_id = ?", ticketID).Order("created_at ASC").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MessageExists reports whether a tenant already stored an external message id
func (r *SupportRepository) MessageExists(tenantID, externalID string) (bool, error) {
	var count int64

	err := r.db.Model(&models.Message{}).
		Where("tenant_id = ? AND external_id = ?", tenantID, externalID).
		Count(&count).Error
	return count > 0, err
}

// firstOrCreate does a lookup-or-insert keyed by the non-zero fields of
// where. When a concurrent writer wins the unique index the existing row is
// read back.
func firstOrCreate[T any](db *gorm.DB, where T, attrs *T) (*T, error) {
	var record T

	query := db.Where(&where)
	if attrs != nil {
		query = query.Attrs(*attrs)
	}

	err := query.FirstOrCreate(&record).Error
	if err == nil {
		return &record, nil
	}

	var existing T
	if retry := db.Where(&where).First(&existing).Error; retry == nil {
		return &existing, nil
	}
	return nil, err
}
