package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
)

const postColumns = `id, author_id, description, category, tags, like_count, status, complaint_count,
	creator_username, creator_first_name, creator_last_name, created_at`

var likePatternEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type PostRepo struct {
	pool *pgxpool.Pool
}

func NewPostRepo(pool *pgxpool.Pool) *PostRepo {
	return &PostRepo{pool: pool}
}

func (r *PostRepo) GetPost(ctx context.Context, id int64) (model.Post, error) {
	if r.pool == nil {
		return model.Post{}, fmt.Errorf("postgres pool is nil")
	}

	post, err := scanPost(r.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err != nil {
		return model.Post{}, errs.Store("get post", err)
	}
	return post, nil
}

func (r *PostRepo) InsertPost(ctx context.Context, authorID int64, draft model.PostDraft, status enums.PostStatus) (model.Post, error) {
	if r.pool == nil {
		return model.Post{}, fmt.Errorf("postgres pool is nil")
	}
	if authorID <= 0 || !status.Valid() {
		return model.Post{}, errs.Validation("invalid post payload")
	}
	tags := draft.Tags
	if tags == nil {
		tags = []string{}
	}

	post, err := scanPost(r.pool.QueryRow(ctx, `
INSERT INTO posts (
	author_id,
	description,
	category,
	tags,
	status,
	creator_username,
	creator_first_name,
	creator_last_name,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
RETURNING `+postColumns,
		authorID, draft.Description, draft.Category, tags, string(status),
		draft.Creator.Username, draft.Creator.FirstName, draft.Creator.LastName,
	))
	if err != nil {
		return model.Post{}, errs.Store("insert post", err)
	}
	return post, nil
}

// UpdatePostStatus applies from -> to only if the row is still in from.
func (r *PostRepo) UpdatePostStatus(ctx context.Context, id int64, from, to enums.PostStatus) (model.Post, error) {
	if r.pool == nil {
		return model.Post{}, fmt.Errorf("postgres pool is nil")
	}
	if !enums.CanTransition(from, to) {
		return model.Post{}, errs.ErrInvalidTransition
	}

	post, err := scanPost(r.pool.QueryRow(ctx, `
UPDATE posts SET
	status = $3,
	updated_at = NOW()
WHERE id = $1 AND status = $2
RETURNING `+postColumns, id, string(from), string(to)))
	if err == nil {
		return post, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return model.Post{}, errs.Store("update post status", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return model.Post{}, errs.Store("check post exists", err)
	}
	if !exists {
		return model.Post{}, errs.ErrNotFound
	}
	return model.Post{}, errs.ErrInvalidTransition
}

func (r *PostRepo) IncrementLikeCount(ctx context.Context, id int64, delta int) (model.Post, error) {
	if r.pool == nil {
		return model.Post{}, fmt.Errorf("postgres pool is nil")
	}

	post, err := scanPost(r.pool.QueryRow(ctx, `
UPDATE posts SET
	like_count = GREATEST(like_count + $2, 0),
	updated_at = NOW()
WHERE id = $1
RETURNING `+postColumns, id, delta))
	if err != nil {
		return model.Post{}, errs.Store("increment like count", err)
	}
	return post, nil
}

func (r *PostRepo) QueryApprovedPosts(ctx context.Context, filter model.PostFilter, mode enums.SortMode, offset, limit int) ([]model.Post, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if filter.Restrict && len(filter.OnlyIDs) == 0 {
		return []model.Post{}, nil
	}

	where := []string{"status = 'approved'"}
	args := make([]any, 0, 8)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Category != "" {
		where = append(where, "category = "+arg(filter.Category))
	}
	if filter.AuthorID != 0 {
		where = append(where, "author_id = "+arg(filter.AuthorID))
	}
	if filter.Search != "" {
		where = append(where, "description ILIKE '%' || "+arg(likePatternEscaper.Replace(filter.Search))+" || '%'")
	}
	if len(filter.Tags) > 0 {
		where = append(where, "tags @> "+arg(filter.Tags)+"::text[]")
	}
	if filter.Restrict {
		where = append(where, "id = ANY("+arg(filter.OnlyIDs)+"::bigint[])")
	}
	if len(filter.ExcludeIDs) > 0 {
		where = append(where, "NOT (id = ANY("+arg(filter.ExcludeIDs)+"::bigint[]))")
	}

	query := `SELECT ` + postColumns + ` FROM posts WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + orderBy(mode) +
		` OFFSET ` + arg(offset) + ` LIMIT ` + arg(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errs.Store("query approved posts", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

func (r *PostRepo) ListPendingPosts(ctx context.Context, limit int) ([]model.Post, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+postColumns+`
FROM posts
WHERE status = 'pending'
ORDER BY created_at ASC, id ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errs.Store("list pending posts", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

func orderBy(mode enums.SortMode) string {
	switch mode {
	case enums.SortOldest:
		return "created_at ASC, id ASC"
	case enums.SortRating:
		return "like_count DESC, created_at DESC, id DESC"
	default:
		return "created_at DESC, id DESC"
	}
}

func collectPosts(rows pgx.Rows) ([]model.Post, error) {
	out := make([]model.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, errs.Store("scan post", err)
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Store("iterate posts", err)
	}
	return out, nil
}

func scanPost(row pgx.Row) (model.Post, error) {
	var (
		post   model.Post
		status string
	)
	err := row.Scan(
		&post.ID,
		&post.AuthorID,
		&post.Description,
		&post.Category,
		&post.Tags,
		&post.LikeCount,
		&status,
		&post.ComplaintCount,
		&post.Creator.Username,
		&post.Creator.FirstName,
		&post.Creator.LastName,
		&post.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Post{}, errs.ErrNotFound
		}
		return model.Post{}, err
	}
	post.Status = enums.PostStatus(status)
	post.Creator.UserID = post.AuthorID
	return post, nil
}
