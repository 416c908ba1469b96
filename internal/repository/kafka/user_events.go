package kafka

import (
	"context"

	"github.com/NordCoder/Gatekeep/internal/domain/kafka"
	"github.com/NordCoder/Gatekeep/internal/domain/user"
)

const HeaderEventType = "event-type"

type UserEventsKafka struct {
	p *Producer
}

func NewUserEventsKafka(p *Producer) *UserEventsKafka { return &UserEventsKafka{p: p} }

var _ kafka.UserEvents = (*UserEventsKafka)(nil)

// PublishUserEvent keys messages by user id so events of one user stay ordered within a partition.
func (e *UserEventsKafka) PublishUserEvent(ctx context.Context, ev user.Event) error {
	return e.p.PublishJSON(ctx, KeyFromInt64(ev.UserID), ev, map[string]string{
		HeaderEventType: string(ev.Type),
	})
}
