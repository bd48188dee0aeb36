package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/credcore/pkg/constants"
)

// AuditEvent is a single security-relevant event emitted by the identity service.
// AuditEvent 是身份服务发出的单个安全相关事件。
type AuditEvent struct {
	ID        string                   `json:"id" gorm:"primaryKey"`
	AppID     string                   `json:"app_id" gorm:"index"`
	KeyID     string                   `json:"key_id,omitempty"`
	EventType constants.AuditEventType `json:"event_type"`
	Result    string                   `json:"result"`
	Algorithm constants.Algorithm      `json:"algorithm,omitempty"`
	Message   string                   `json:"message,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// NewAuditEvent creates a new audit event stamped with a fresh id and the current time.
func NewAuditEvent(appID, keyID string, eventType constants.AuditEventType, result string) AuditEvent {
	return AuditEvent{
		ID:        uuid.NewString(),
		AppID:     appID,
		KeyID:     keyID,
		EventType: eventType,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}
}
