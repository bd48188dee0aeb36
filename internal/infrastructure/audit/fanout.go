package audit

import (
	"context"
	"io"

	"go.uber.org/multierr"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
)

// FanOut writes every event to all sinks and reports the combined failures. A
// failing sink never prevents the remaining ones from receiving the event.
type FanOut struct {
	sinks []service.AuditService
}

// NewFanOut creates a FanOut over sinks.
func NewFanOut(sinks ...service.AuditService) *FanOut {
	return &FanOut{sinks: sinks}
}

// LogEvent implements service.AuditService.
func (f *FanOut) LogEvent(ctx context.Context, event models.AuditEvent) error {
	var err error
	for _, s := range f.sinks {
		err = multierr.Append(err, s.LogEvent(ctx, event))
	}
	return err
}

// Close closes every sink that holds resources.
func (f *FanOut) Close() error {
	var err error
	for _, s := range f.sinks {
		if c, ok := s.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

// Discard drops every event. It backs deployments with auditing disabled.
type Discard struct{}

func (Discard) LogEvent(context.Context, models.AuditEvent) error { return nil }
