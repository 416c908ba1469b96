package outbox

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("outbox message not found")

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"

	// StatusFailed is terminal: the message is never picked again.
	StatusFailed Status = "FAILED"
)

type Kind int

const (
	KindUserRegistered Kind = 1
	KindUserUpdated    Kind = 2
)

type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	Attempts       int
	AvailableAt    time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Traceparent    string
	Tracestate     string
	Baggage        string
}

type Repository interface {
	Enqueue(ctx context.Context, m Message) error

	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)

	MarkSuccess(ctx context.Context, keys []string) error

	// MarkFailure records a failed dispatch. A terminal failure moves the message to FAILED,
	// otherwise it becomes pickable again after retryAfter.
	MarkFailure(ctx context.Context, key string, f Failure) error
}

type Failure struct {
	Terminal   bool
	RetryAfter time.Duration
	Reason     string
}

type KindHandler func(ctx context.Context, data []byte) error

type GlobalHandler func(kind Kind) (KindHandler, error)
