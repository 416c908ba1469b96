package user

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

type Repo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, limit, offset int) ([]User, int, error)
}

type DetailRepo interface {
	GetByUserID(ctx context.Context, userID int64) (*Detail, error)
}

// EventSink records user lifecycle events. Implementations must join the transaction carried by ctx.
type EventSink interface {
	Enqueue(ctx context.Context, e Event) error
}
