package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/pkg/logger"
	"github.com/clinicore/clinic-api/pkg/messaging"
	"github.com/clinicore/clinic-api/pkg/metrics"
)

// Channel is the broker channel the external audit sink consumes.
const Channel = "audit.events"

// Service publishes audit events to the external sink through the
// message broker. Emission is fire-and-forget: a sink failure never
// rolls back the operation that produced it.
type Service struct {
	broker  messaging.Broker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(broker messaging.Broker, l *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{broker: broker, logger: l, metrics: m}
}

type EmitOptions struct {
	OldStatus string
	NewStatus string
	Changes   interface{}
}

// Log builds and emits an audit event. Failures are logged and
// counted, never returned.
func (s *Service) Log(ctx context.Context, entityType string, entityID uuid.UUID, action, actor string, opts *EmitOptions) {
	event := &model.AuditEvent{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		CreatedAt:  time.Now(),
	}
	if opts != nil {
		event.OldStatus = opts.OldStatus
		event.NewStatus = opts.NewStatus
		if opts.Changes != nil {
			changes, err := json.Marshal(opts.Changes)
			if err != nil {
				s.logger.Error(err, "failed to marshal audit changes",
					"entity_type", entityType, "entity_id", entityID)
			} else {
				event.Changes = changes
			}
		}
	}
	s.Emit(ctx, event)
}

func (s *Service) Emit(ctx context.Context, event *model.AuditEvent) {
	if err := s.broker.Publish(ctx, Channel, event); err != nil {
		s.metrics.AuditEmitFailures.Inc()
		s.logger.Error(err, "failed to emit audit event",
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
			"action", event.Action)
		return
	}
	s.metrics.AuditEventsEmitted.Inc()
}
