package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kakcer47/BotTG/internal/domain/errs"
)

type ReportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

// AddReport records one complaint per (post, reporter) and bumps the post's
// complaint counter in the same transaction.
func (r *ReportRepo) AddReport(ctx context.Context, postID, reporterID int64, reason string) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if postID <= 0 || reporterID <= 0 {
		return 0, errs.Validation("invalid report payload")
	}

	var complaints int
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
SELECT complaint_count FROM posts WHERE id = $1 FOR UPDATE
`, postID).Scan(&complaints); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return fmt.Errorf("lock post: %w", err)
		}

		tag, err := tx.Exec(ctx, `
INSERT INTO post_reports (post_id, reporter_id, reason, created_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (post_id, reporter_id) DO NOTHING
`, postID, reporterID, strings.TrimSpace(reason))
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrAlreadyReported
		}

		if err := tx.QueryRow(ctx, `
UPDATE posts SET
	complaint_count = complaint_count + 1,
	updated_at = NOW()
WHERE id = $1
RETURNING complaint_count
`, postID).Scan(&complaints); err != nil {
			return fmt.Errorf("increment complaint count: %w", err)
		}
		return nil
	})
	if err != nil {
		return complaints, errs.Store("add report", err)
	}
	return complaints, nil
}
