package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"iazeconnect/internal/models"
)

// Instance identifies a session on the gateway. An empty APIKey means the
// client's default key is used.
type Instance struct {
	Name   string
	APIKey string
}

// InstanceFor builds the gateway identity of a registered connection
func InstanceFor(connection *models.Connection) Instance {
	instance := Instance{Name: connection.InstanceName}
	if connection.APIKey != nil {
		instance.APIKey = *connection.APIKey
	}
	return instance
}

// State is the live view of a session. Err carries the cause when Status is
// error; Phone is only filled for connected sessions.
type State struct {
	Status models.ConnectionStatus
	Phone  string
	Err    error
}

type MessageKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type MessageContent struct {
	Conversation        string `json:"conversation,omitempty"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage,omitempty"`
	ImageMessage *struct {
		Caption string `json:"caption"`
	} `json:"imageMessage,omitempty"`
	VideoMessage *struct {
		Caption string `json:"caption"`
	} `json:"videoMessage,omitempty"`
}

// Message is one entry returned by findMessages or pushed by messages.upsert
type Message struct {
	Key              MessageKey      `json:"key"`
	Message          *MessageContent `json:"message,omitempty"`
	PushName         string          `json:"pushName,omitempty"`
	MessageTimestamp json.RawMessage `json:"messageTimestamp,omitempty"`
}

// Text extracts the readable body of the message
func (m *Message) Text() string {
	if m.Message == nil {
		return ""
	}
	content := m.Message
	switch {
	case strings.TrimSpace(content.Conversation) != "":
		return strings.TrimSpace(content.Conversation)
	case content.ExtendedTextMessage != nil && strings.TrimSpace(content.ExtendedTextMessage.Text) != "":
		return strings.TrimSpace(content.ExtendedTextMessage.Text)
	case content.ImageMessage != nil && strings.TrimSpace(content.ImageMessage.Caption) != "":
		return strings.TrimSpace(content.ImageMessage.Caption)
	case content.VideoMessage != nil:
		return strings.TrimSpace(content.VideoMessage.Caption)
	}
	return ""
}

// IsGroupOrBroadcast reports chats that are not one-to-one conversations
func (m *Message) IsGroupOrBroadcast() bool {
	jid := m.Key.RemoteJid
	return strings.HasSuffix(jid, "@g.us") || strings.HasSuffix(jid, "@broadcast") || strings.HasSuffix(jid, "@newsletter")
}

// Timestamp returns the message time, or the zero time when the gateway sent
// none. Evolution sends either a number or a quoted number.
func (m *Message) Timestamp() time.Time {
	raw := strings.Trim(strings.TrimSpace(string(m.MessageTimestamp)), `"`)
	if raw == "" || raw == "null" {
		return time.Time{}
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
