package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Gatekeep/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const (
	userColumns = `id, username, email, password_hash, role, created_at, updated_at`

	qUserInsert = `
INSERT INTO users (username, email, password_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns + `;`

	qUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1;`

	qUserByEmail = `
SELECT ` + userColumns + `
FROM users
WHERE email = $1;`

	qUserUpdate = `
UPDATE users
SET username   = $2,
    email      = $3,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns + `;`

	qUserCount = `SELECT count(*) FROM users;`

	qUserPage = `
SELECT ` + userColumns + `
FROM users
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2;`
)

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qUserInsert, u.Username, u.Email, u.PasswordHash, string(u.Role))
	if err := scanUser(row, u); err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return fmt.Errorf("user insert: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByID, id), &u); err != nil {
		return nil, notFound(err, "user by id")
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByEmail, email), &u); err != nil {
		return nil, notFound(err, "user by email")
	}
	return &u, nil
}

// Update persists username and email. Role and password hash are immutable here.
func (r *UserRepo) Update(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qUserUpdate, u.ID, u.Username, u.Email)
	if err := scanUser(row, u); err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return notFound(err, "user update")
	}
	return nil
}

func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]user.User, int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)

	var total int64
	if err := eq.QueryRow(ctx, qUserCount).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("user count: %w", err)
	}

	rows, err := eq.Query(ctx, qUserPage, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("user page: %w", err)
	}
	defer rows.Close()

	out := make([]user.User, 0, limit)
	for rows.Next() {
		var u user.User
		if err := scanUser(rows, &u); err != nil {
			return nil, 0, fmt.Errorf("user page: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("user page: %w", err)
	}
	return out, int(total), nil
}

func scanUser(row pgx.Row, out *user.User) error {
	var role string
	if err := row.Scan(&out.ID, &out.Username, &out.Email, &out.PasswordHash, &role, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return err
	}
	out.Role = user.Role(role)
	return nil
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return user.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
