package identity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/auth"
	"github.com/NordCoder/Gatekeep/internal/domain/user"
	"github.com/NordCoder/Gatekeep/internal/obs"
)

const (
	MsgUserCreated        = "User created successfully"
	MsgUserExists         = "User already exists"
	MsgInvalidCredentials = "Invalid credentials"
	MsgLoginOK            = "Login successful"
	MsgUserNotFound       = "User not found"
	MsgUserFetched        = "User fetched successfully"
	MsgUserUpdated        = "User updated successfully"
	MsgUsersFetched       = "Users fetched successfully"
	MsgServerError        = "Server error"
	MsgPasswordTooLong    = "Password must be at most 72 bytes"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TokenIssuer interface {
	Issue(id auth.Identity) (string, error)
}

type Config struct {
	// RegisterRole is the role every registration through this deployment receives.
	RegisterRole user.Role
	Now          func() time.Time
}

type Deps struct {
	Users   user.Repo
	Details user.DetailRepo // optional
	Tx      Transactor      // optional; without it writes run without a transaction
	Events  user.EventSink  // optional
	Hasher  auth.Hasher
	Tokens  TokenIssuer
	Log     *zap.Logger
}

type Usecase struct {
	users   user.Repo
	details user.DetailRepo
	tx      Transactor
	events  user.EventSink
	hasher  auth.Hasher
	tokens  TokenIssuer
	log     *zap.Logger
	cfg     Config
}

func NewUsecase(d Deps, cfg Config) *Usecase {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.RegisterRole == "" {
		cfg.RegisterRole = user.RoleCustomer
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{
		users: d.Users, details: d.Details, tx: d.Tx, events: d.Events,
		hasher: d.Hasher, tokens: d.Tokens, log: log, cfg: cfg,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginResult struct {
	Token  string          `json:"token"`
	User   user.Projection `json:"user"`
	Detail map[string]any  `json:"detail,omitempty"`
}

type UpdateInput struct {
	Username *string
	Email    *string
}

type UserPage struct {
	Users       []user.Projection `json:"users"`
	TotalUsers  int               `json:"totalUsers"`
	TotalPages  int               `json:"totalPages"`
	CurrentPage int               `json:"currentPage"`
}

// Register creates a user with the configured role. The returned identity never carries the hash.
func (u *Usecase) Register(ctx context.Context, in RegisterInput) (auth.Identity, error) {
	email := user.NormalizeEmail(in.Email)

	var created *user.User
	err := u.inTx(ctx, func(ctx context.Context) error {
		if _, err := u.users.GetByEmail(ctx, email); err == nil {
			return newError(KindAlreadyExists, MsgUserExists, nil)
		} else if !errors.Is(err, user.ErrNotFound) {
			return u.serverError(ctx, "register.lookup", err)
		}

		hash, err := u.hasher.Hash(in.Password)
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return newError(KindValidation, MsgPasswordTooLong, err)
		}
		if err != nil {
			return u.serverError(ctx, "register.hash", err)
		}

		now := u.cfg.Now()
		rec := &user.User{
			Username:     in.Username,
			Email:        email,
			PasswordHash: hash,
			Role:         u.cfg.RegisterRole,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := u.users.Create(ctx, rec); err != nil {
			if errors.Is(err, user.ErrEmailTaken) {
				return newError(KindAlreadyExists, MsgUserExists, err)
			}
			return u.serverError(ctx, "register.create", err)
		}
		if err := u.emit(ctx, user.EventRegistered, rec); err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		return auth.Identity{}, err
	}

	obs.WithTrace(ctx, u.log).Info("identity.register",
		zap.Int64("user_id", created.ID), zap.String("role", string(created.Role)))
	return auth.Identity{ID: created.ID, Username: created.Username, Email: created.Email}, nil
}

// Login verifies credentials and issues a token. Unknown email and wrong password share one message.
func (u *Usecase) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = user.NormalizeEmail(email)

	rec, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, newError(KindNotFound, MsgInvalidCredentials, err)
		}
		return nil, u.serverError(ctx, "login.lookup", err)
	}

	if !u.hasher.Verify(password, rec.PasswordHash) {
		return nil, newError(KindInvalidCredential, MsgInvalidCredentials, nil)
	}

	token, err := u.tokens.Issue(auth.Identity{ID: rec.ID, Email: rec.Email, Username: rec.Username})
	if err != nil {
		return nil, u.serverError(ctx, "login.issue", err)
	}

	return &LoginResult{Token: token, User: rec.Projection(), Detail: u.detail(ctx, rec.ID)}, nil
}

// detail is best effort: any failure just leaves the field out.
func (u *Usecase) detail(ctx context.Context, userID int64) map[string]any {
	if u.details == nil {
		return nil
	}
	d, err := u.details.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			obs.WithTrace(ctx, u.log).Warn("identity.login.detail", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil
	}
	return d.Attributes
}

func (u *Usecase) GetUser(ctx context.Context, id int64) (user.Projection, error) {
	rec, err := u.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Projection{}, newError(KindNotFound, MsgUserNotFound, err)
		}
		return user.Projection{}, u.serverError(ctx, "get_user", err)
	}
	return rec.Projection(), nil
}

// UpdateUser changes only the supplied non-empty fields. An empty update returns the current projection
// without writing.
func (u *Usecase) UpdateUser(ctx context.Context, id int64, in UpdateInput) (user.Projection, error) {
	var out user.Projection
	err := u.inTx(ctx, func(ctx context.Context) error {
		rec, err := u.users.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return newError(KindNotFound, MsgUserNotFound, err)
			}
			return u.serverError(ctx, "update.lookup", err)
		}

		changed := false
		if in.Username != nil && *in.Username != "" && *in.Username != rec.Username {
			rec.Username = *in.Username
			changed = true
		}
		if in.Email != nil {
			if email := user.NormalizeEmail(*in.Email); email != "" && email != rec.Email {
				rec.Email = email
				changed = true
			}
		}
		if !changed {
			out = rec.Projection()
			return nil
		}

		rec.UpdatedAt = u.cfg.Now()
		if err := u.users.Update(ctx, rec); err != nil {
			switch {
			case errors.Is(err, user.ErrEmailTaken):
				return newError(KindAlreadyExists, MsgUserExists, err)
			case errors.Is(err, user.ErrNotFound):
				return newError(KindNotFound, MsgUserNotFound, err)
			}
			return u.serverError(ctx, "update.write", err)
		}
		if err := u.emit(ctx, user.EventUpdated, rec); err != nil {
			return err
		}
		out = rec.Projection()
		return nil
	})
	return out, err
}

// ListUsers pages users newest first. page and limit below 1 fall back to defaults.
func (u *Usecase) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	recs, total, err := u.users.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, u.serverError(ctx, "list_users", err)
	}

	out := &UserPage{
		Users:       make([]user.Projection, 0, len(recs)),
		TotalUsers:  total,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
	}
	for i := range recs {
		out.Users = append(out.Users, recs[i].Projection())
	}
	return out, nil
}

func (u *Usecase) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u.tx == nil {
		return fn(ctx)
	}
	err := u.tx.WithTx(ctx, fn)
	var e *Error
	if err != nil && !errors.As(err, &e) {
		return u.serverError(ctx, "tx", err)
	}
	return err
}

func (u *Usecase) emit(ctx context.Context, t user.EventType, rec *user.User) error {
	if u.events == nil {
		return nil
	}
	err := u.events.Enqueue(ctx, user.Event{
		Type: t, UserID: rec.ID, Username: rec.Username, Email: rec.Email, Role: rec.Role, At: u.cfg.Now(),
	})
	if err != nil {
		return u.serverError(ctx, "events.enqueue", err)
	}
	return nil
}

func (u *Usecase) serverError(ctx context.Context, op string, err error) *Error {
	obs.WithTrace(ctx, u.log).Error("identity."+op, zap.Error(err))
	return newError(KindServer, MsgServerError, err)
}
