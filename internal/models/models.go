package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model com campos comuns
type BaseModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate hook para gerar UUID
func (base *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if base.ID == "" {
		base.ID = uuid.New().String()
	}
	return nil
}

// Enums
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

type TicketOrigin string

const (
	TicketOriginWhatsApp TicketOrigin = "whatsapp"
	TicketOriginFlow12   TicketOrigin = "vendas_flow12"
)

type SenderType string

const (
	SenderClient SenderType = "client"
	SenderAgent  SenderType = "agent"
	SenderBot    SenderType = "bot"
	SenderSystem SenderType = "system"
)

// DepartmentNameForSlot nomeia o departamento de um slot de rotação.
func DepartmentNameForSlot(slot int) string {
	if slot < 1 {
		slot = 1
	}
	return fmt.Sprintf("WHATSAPP %d", slot)
}

// Models
type Department struct {
	BaseModel
	TenantID string `gorm:"type:varchar(64);not null;uniqueIndex:ux_departments_tenant_name,priority:1" json:"tenant_id"`
	Name     string `gorm:"type:varchar(128);not null;uniqueIndex:ux_departments_tenant_name,priority:2" json:"name"`
}

func (Department) TableName() string {
	return "departments"
}

type Client struct {
	BaseModel
	TenantID string  `gorm:"type:varchar(64);not null;uniqueIndex:ux_clients_tenant_phone,priority:1" json:"tenant_id"`
	Phone    string  `gorm:"type:varchar(32);not null;uniqueIndex:ux_clients_tenant_phone,priority:2" json:"phone"`
	Name     *string `gorm:"type:varchar(255)" json:"name"`
	PIN      *string `gorm:"type:varchar(8)" json:"pin"`
}

func (Client) TableName() string {
	return "clients"
}

type Ticket struct {
	BaseModel
	TenantID      string       `gorm:"type:varchar(64);not null;index:ix_tickets_tenant_client_status,priority:1" json:"tenant_id"`
	ClientID      string       `gorm:"type:varchar(36);not null;index:ix_tickets_tenant_client_status,priority:2" json:"client_id"`
	Status        TicketStatus `gorm:"type:varchar(32);not null;index:ix_tickets_tenant_client_status,priority:3" json:"status"`
	DepartmentID  *string      `gorm:"type:varchar(36)" json:"department_id"`
	ConnectionID  *string      `gorm:"type:varchar(36)" json:"connection_id"`
	Origin        TicketOrigin `gorm:"type:varchar(32);not null" json:"origin"`
	LastMessageAt *time.Time   `json:"last_message_at,omitempty"`

	Client *Client `gorm:"foreignKey:ClientID" json:"client,omitempty"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// Message is one entry of a ticket's log. ExternalID is the gateway's id for
// inbound WhatsApp messages and is unique per tenant.
type Message struct {
	ID         string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID   string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_messages_tenant_external,priority:1" json:"tenant_id"`
	TicketID   string     `gorm:"type:varchar(36);not null;index" json:"ticket_id"`
	FromType   SenderType `gorm:"type:varchar(16);not null" json:"from_type"`
	Text       string     `gorm:"type:text;not null" json:"text"`
	ExternalID *string    `gorm:"type:varchar(128);uniqueIndex:ux_messages_tenant_external,priority:2" json:"external_id,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;index" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}
