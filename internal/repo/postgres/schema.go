package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	photo_url TEXT NOT NULL DEFAULT '',
	is_banned BOOLEAN NOT NULL DEFAULT FALSE,
	ban_reason TEXT NOT NULL DEFAULT '',
	post_limit INT NOT NULL DEFAULT 60,
	posts_today INT NOT NULL DEFAULT 0,
	last_post_count_reset DATE NOT NULL DEFAULT CURRENT_DATE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS posts (
	id BIGSERIAL PRIMARY KEY,
	author_id BIGINT NOT NULL,
	description TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	tags TEXT[] NOT NULL DEFAULT '{}',
	like_count INT NOT NULL DEFAULT 0 CHECK (like_count >= 0),
	status TEXT NOT NULL DEFAULT 'pending',
	complaint_count INT NOT NULL DEFAULT 0,
	creator_username TEXT NOT NULL DEFAULT '',
	creator_first_name TEXT NOT NULL DEFAULT '',
	creator_last_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS posts_status_created_idx ON posts (status, created_at DESC);
CREATE INDEX IF NOT EXISTS posts_tags_idx ON posts USING GIN (tags);

CREATE TABLE IF NOT EXISTS user_post_sets (
	user_id BIGINT NOT NULL,
	set_name TEXT NOT NULL,
	post_id BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, set_name, post_id)
);

CREATE TABLE IF NOT EXISTS post_reports (
	post_id BIGINT NOT NULL REFERENCES posts (id),
	reporter_id BIGINT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (post_id, reporter_id)
);
`

// EnsureSchema creates the tables when they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
