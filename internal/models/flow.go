package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FlowSession persists one run of the guided trial signup (flow 12).
type FlowSession struct {
	BaseModel
	TenantID            string     `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Step                string     `gorm:"type:varchar(32);not null" json:"state"`
	ContactNumber       *string    `gorm:"type:varchar(16);index" json:"contact_number,omitempty"`
	PIN                 *string    `gorm:"type:varchar(2)" json:"pin,omitempty"`
	Username            *string    `gorm:"type:varchar(255)" json:"username,omitempty"`
	Password            *string    `gorm:"type:varchar(255)" json:"password,omitempty"`
	URL                 *string    `gorm:"type:varchar(512)" json:"url,omitempty"`
	CredentialsIssuedAt *time.Time `gorm:"index" json:"credentials_issued_at,omitempty"`
	HandoffTicketID     *string    `gorm:"type:varchar(36)" json:"handoff_ticket_id,omitempty"`
}

func (FlowSession) TableName() string {
	return "flow_sessions"
}

type FlowMessage struct {
	ID        string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	SessionID string     `gorm:"type:varchar(36);not null;index" json:"session_id"`
	FromType  SenderType `gorm:"type:varchar(16);not null" json:"from_type"`
	Text      string     `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time  `gorm:"not null;index" json:"created_at"`
}

func (FlowMessage) TableName() string {
	return "flow_messages"
}

func (m *FlowMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

// PendingHandoff is an outbox entry for a support handoff that failed and
// must be retried.
type PendingHandoff struct {
	BaseModel
	FlowSessionID string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"flow_session_id"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	LastError     *string    `gorm:"type:text" json:"last_error,omitempty"`
	DeliveredAt   *time.Time `gorm:"index" json:"delivered_at,omitempty"`
}

func (PendingHandoff) TableName() string {
	return "pending_handoffs"
}
