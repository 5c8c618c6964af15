package models

import (
	"time"
)

// ConnectionStatus represents the lifecycle status of a WhatsApp session
type ConnectionStatus string

const (
	ConnectionStatusConnecting   ConnectionStatus = "connecting"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusDeleted      ConnectionStatus = "deleted"
	ConnectionStatusError        ConnectionStatus = "error"
)

// Valid reports whether s is one of the known statuses
func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionStatusConnecting, ConnectionStatusConnected, ConnectionStatusDisconnected,
		ConnectionStatusDeleted, ConnectionStatusError:
		return true
	}
	return false
}

// Connection is a tenant's WhatsApp session registered on the gateway.
// QRCode only exists while connecting and PhoneNumber only while connected;
// use ApplyStatus to change Status so both stay consistent.
type Connection struct {
	BaseModel
	TenantID              string           `gorm:"type:varchar(64);not null;uniqueIndex:ux_connections_tenant_instance,priority:1" json:"tenant_id"`
	InstanceName          string           `gorm:"type:varchar(128);not null;uniqueIndex:ux_connections_tenant_instance,priority:2" json:"instance_name"`
	APIKey                *string          `gorm:"type:varchar(255)" json:"-"`
	Slot                  int              `gorm:"not null;default:1" json:"slot"`
	Status                ConnectionStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	QRCode                *string          `gorm:"type:text" json:"qr_code"`
	PhoneNumber           *string          `gorm:"type:varchar(32)" json:"phone_number"`
	MessagesReceivedToday int              `gorm:"not null;default:0" json:"messages_received_today"`
	MessagesSentToday     int              `gorm:"not null;default:0" json:"messages_sent_today"`
	LastActivity          *time.Time       `json:"last_activity,omitempty"`
}

func (Connection) TableName() string {
	return "connections"
}

// ApplyStatus muda o status preservando o invariante de QR/telefone.
func (c *Connection) ApplyStatus(status ConnectionStatus, qrCode, phoneNumber *string) {
	c.Status = status
	c.QRCode = qrCode
	c.PhoneNumber = phoneNumber
	c.Normalize()
}

// Normalize clears the fields the current status does not allow.
func (c *Connection) Normalize() {
	if c.Status == ConnectionStatusConnected {
		c.QRCode = nil
	} else {
		c.PhoneNumber = nil
	}
}

// ConsistencyViolation returns a description of the broken invariant, or "".
func (c *Connection) ConsistencyViolation() string {
	if c.Status == ConnectionStatusConnected && c.QRCode != nil {
		return "qr_code presente com status connected"
	}
	if c.Status != ConnectionStatusConnected && c.PhoneNumber != nil {
		return "phone_number presente com status " + string(c.Status)
	}
	return ""
}

// DepartmentName is the deterministic department name of the rotation slot
func (c *Connection) DepartmentName() string {
	return DepartmentNameForSlot(c.Slot)
}

// CreateConnectionRequest represents the request to register a new session
type CreateConnectionRequest struct {
	InstanceName string  `json:"instance_name" binding:"required"`
	APIKey       *string `json:"api_key,omitempty"`
}
