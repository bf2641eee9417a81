package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leadflowhq/leadflow/persistence"
)

type baseDao struct {
	pool *pgxpool.Pool
}

func storageError(err error) error {
	return persistence.StorageLayerError{Message: err.Error()}
}

// NewPool connects a pgx pool and verifies the connection.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
