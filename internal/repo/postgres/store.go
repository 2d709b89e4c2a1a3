package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Store is the full persistent store backed by one pool.
type Store struct {
	*UserRepo
	*PostRepo
	*ReportRepo
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		UserRepo:   NewUserRepo(pool),
		PostRepo:   NewPostRepo(pool),
		ReportRepo: NewReportRepo(pool),
	}
}
