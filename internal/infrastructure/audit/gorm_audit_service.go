// Package audit implements the AuditService interface on GORM and Kafka, plus a
// fan-out that writes to several sinks.
package audit

import (
	"context"

	"gorm.io/gorm"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/errors"
)

// GormAuditService stores audit events in the audit_events table.
type GormAuditService struct {
	db *gorm.DB
}

// NewGormAuditService creates and configures a new GormAuditService.
func NewGormAuditService(db *gorm.DB) *GormAuditService {
	return &GormAuditService{db: db}
}

// LogEvent saves an AuditEvent to the database.
func (s *GormAuditService) LogEvent(ctx context.Context, event models.AuditEvent) error {
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return errors.Internal("failed to store audit event", err)
	}
	return nil
}

// ListByApp returns the most recent events of one application, newest first.
func (s *GormAuditService) ListByApp(ctx context.Context, appID string, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := s.db.WithContext(ctx).
		Where("app_id = ?", appID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, errors.Internal("failed to list audit events", err)
	}
	return events, nil
}
