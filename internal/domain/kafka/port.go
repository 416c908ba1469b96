package kafka

import (
	"context"

	"github.com/NordCoder/Gatekeep/internal/domain/user"
)

// UserEvents publishes user lifecycle events to the broker.
type UserEvents interface {
	PublishUserEvent(ctx context.Context, e user.Event) error
}
