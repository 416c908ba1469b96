package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Gatekeep/internal/domain/user"
)

var _ user.DetailRepo = (*DetailRepo)(nil)

// DetailRepo reads role-specific profile data kept as a JSON document per user.
type DetailRepo struct{ db *DB }

func NewDetailRepo(db *DB) *DetailRepo { return &DetailRepo{db: db} }

const qDetailByUser = `
SELECT user_id, attributes
FROM role_details
WHERE user_id = $1;`

// GetByUserID returns user.ErrNotFound when the user has no detail row.
func (r *DetailRepo) GetByUserID(ctx context.Context, userID int64) (*user.Detail, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		d   user.Detail
		raw []byte
	)
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qDetailByUser, userID).Scan(&d.UserID, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("detail by user: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d.Attributes); err != nil {
			return nil, fmt.Errorf("decode detail: %w", err)
		}
	}
	return &d, nil
}
