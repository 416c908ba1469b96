package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/NordCoder/Gatekeep/internal/domain/outbox"
	"github.com/NordCoder/Gatekeep/internal/domain/user"
)

var _ user.EventSink = (*Sink)(nil)

// Sink turns user events into outbox rows. The repository joins the caller's transaction,
// so an event is stored only if the user write commits.
type Sink struct {
	repo outbox.Repository
}

func NewSink(repo outbox.Repository) *Sink { return &Sink{repo: repo} }

func (s *Sink) Enqueue(ctx context.Context, e user.Event) error {
	kind, err := kindOf(e.Type)
	if err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal user event: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return s.repo.Enqueue(ctx, outbox.Message{
		IdempotencyKey: uuid.NewString(),
		Kind:           kind,
		Data:           data,
		Status:         outbox.StatusCreated,
		Traceparent:    carrier.Get("traceparent"),
		Tracestate:     carrier.Get("tracestate"),
		Baggage:        carrier.Get("baggage"),
	})
}

func kindOf(t user.EventType) (outbox.Kind, error) {
	switch t {
	case user.EventRegistered:
		return outbox.KindUserRegistered, nil
	case user.EventUpdated:
		return outbox.KindUserUpdated, nil
	default:
		return 0, fmt.Errorf("unsupported user event type %q", t)
	}
}
