package habit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "habittracker/contracts/mq"
	"habittracker/pkg/circuitbreaker"
	"habittracker/pkg/metrics"
	"habittracker/pkg/trace"
)

// EventPublisher is satisfied by *mq.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// GuardedPublisher sends events through a circuit breaker so a broker outage
// fails fast instead of stalling requests.
type GuardedPublisher struct {
	next    EventPublisher
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewGuardedPublisher(next EventPublisher, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *GuardedPublisher {
	return &GuardedPublisher{next: next, breaker: breaker, logger: logger}
}

func (p *GuardedPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	err := p.breaker.Execute(func() error {
		return p.next.Publish(ctx, routingKey, payload)
	})
	switch err {
	case nil:
		metrics.IncrementEventPublished(routingKey, "ok")
	case circuitbreaker.ErrCircuitBreakerOpen:
		metrics.IncrementEventPublished(routingKey, "rejected")
	default:
		metrics.IncrementEventPublished(routingKey, "error")
	}
	if err != nil {
		p.logger.Debug("Event publish failed",
			zap.String("routing_key", routingKey),
			zap.String("breaker_state", p.breaker.GetState().String()),
			zap.Error(err),
		)
	}
	return err
}

func (s *Service) newMeta(ctx context.Context, habitID string) mqcontracts.EventMeta {
	return mqcontracts.EventMeta{
		EventID:    uuid.NewString(),
		HabitID:    habitID,
		TraceID:    trace.FromContext(ctx),
		OccurredAt: s.now().UTC(),
	}
}

// publish is best-effort: the write already committed.
func (s *Service) publish(ctx context.Context, routingKey string, payload any) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.events.Publish(ctx, routingKey, payload); err != nil {
		s.logger.Error("Failed to publish habit event",
			zap.String("routing_key", routingKey),
			zap.String("trace_id", trace.FromContext(ctx)),
			zap.Error(err),
		)
	}
}
