package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
)

const userColumns = `id, username, first_name, last_name, photo_url, is_banned, ban_reason,
	post_limit, posts_today, to_char(last_post_count_reset, 'YYYY-MM-DD'), created_at`

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetUser(ctx context.Context, id int64) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}

	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return model.User{}, errs.Store("get user", err)
	}
	return r.hydrate(ctx, user)
}

func (r *UserRepo) UpsertUser(ctx context.Context, profile model.Profile, dailyQuota int, today string) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}
	if profile.UserID <= 0 {
		return model.User{}, errs.Validation("invalid user id")
	}

	user, err := scanUser(r.pool.QueryRow(ctx, `
INSERT INTO users (
	id,
	username,
	first_name,
	last_name,
	photo_url,
	post_limit,
	last_post_count_reset,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7::date, NOW(), NOW())
ON CONFLICT (id) DO UPDATE SET
	username = EXCLUDED.username,
	first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	photo_url = EXCLUDED.photo_url,
	updated_at = NOW()
RETURNING `+userColumns,
		profile.UserID, profile.Username, profile.FirstName, profile.LastName, profile.PhotoURL, dailyQuota, today,
	))
	if err != nil {
		return model.User{}, errs.Store("upsert user", err)
	}
	return r.hydrate(ctx, user)
}

func (r *UserRepo) SetBanned(ctx context.Context, userID int64, banned bool, reason string) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}
	if !banned {
		reason = ""
	}

	user, err := scanUser(r.pool.QueryRow(ctx, `
UPDATE users SET
	is_banned = $2,
	ban_reason = $3,
	updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns, userID, banned, reason))
	if err != nil {
		return model.User{}, errs.Store("set banned", err)
	}
	return r.hydrate(ctx, user)
}

// ResetDailyCounterIfStale zeroes posts_today only when the stored reset day
// is before today, so concurrent callers reset at most once.
func (r *UserRepo) ResetDailyCounterIfStale(ctx context.Context, userID int64, today string) (model.User, bool, error) {
	if r.pool == nil {
		return model.User{}, false, fmt.Errorf("postgres pool is nil")
	}

	user, err := scanUser(r.pool.QueryRow(ctx, `
UPDATE users SET
	posts_today = 0,
	last_post_count_reset = $2::date,
	updated_at = NOW()
WHERE id = $1 AND last_post_count_reset < $2::date
RETURNING `+userColumns, userID, today))
	if err == nil {
		user, err = r.hydrate(ctx, user)
		return user, err == nil, err
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return model.User{}, false, errs.Store("reset daily counter", err)
	}

	user, err = r.GetUser(ctx, userID)
	return user, false, err
}

func (r *UserRepo) IncrementDailyCounter(ctx context.Context, userID int64, delta int) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}

	user, err := scanUser(r.pool.QueryRow(ctx, `
UPDATE users SET
	posts_today = GREATEST(posts_today + $2, 0),
	updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns, userID, delta))
	if err != nil {
		return model.User{}, errs.Store("increment daily counter", err)
	}
	return r.hydrate(ctx, user)
}

func (r *UserRepo) AppendToSet(ctx context.Context, userID int64, set enums.UserSet, postID int64) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if err := checkStoredSet(set); err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, `
INSERT INTO user_post_sets (user_id, set_name, post_id, created_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id, set_name, post_id) DO NOTHING
`, userID, string(set), postID)
	if err != nil {
		return false, errs.Store("append to set", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepo) RemoveFromSet(ctx context.Context, userID int64, set enums.UserSet, postID int64) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if err := checkStoredSet(set); err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM user_post_sets
WHERE user_id = $1 AND set_name = $2 AND post_id = $3
`, userID, string(set), postID)
	if err != nil {
		return false, errs.Store("remove from set", err)
	}
	return tag.RowsAffected() == 1, nil
}

// hydrate loads the membership sets; reported ids come from post_reports.
func (r *UserRepo) hydrate(ctx context.Context, user model.User) (model.User, error) {
	rows, err := r.pool.Query(ctx, `
SELECT set_name, post_id FROM user_post_sets WHERE user_id = $1
UNION ALL
SELECT 'reported', post_id FROM post_reports WHERE reporter_id = $1
`, user.ID)
	if err != nil {
		return model.User{}, errs.Store("load user sets", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name   string
			postID int64
		)
		if err := rows.Scan(&name, &postID); err != nil {
			return model.User{}, errs.Store("scan user set", err)
		}
		if members := user.Set(enums.UserSet(name)); members != nil {
			members[postID] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return model.User{}, errs.Store("iterate user sets", err)
	}
	return user, nil
}

func checkStoredSet(set enums.UserSet) error {
	switch set {
	case enums.SetLiked, enums.SetFavorites, enums.SetHidden:
		return nil
	default:
		return errs.Validation("set %q is not stored in user_post_sets", set)
	}
}

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.PhotoURL,
		&user.IsBanned,
		&user.BanReason,
		&user.DailyQuota,
		&user.PostsToday,
		&user.LastResetDate,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}
