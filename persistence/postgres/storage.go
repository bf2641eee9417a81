package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leadflowhq/leadflow/persistence"
)

// Storage implements persistence.Storage on a shared pgx pool.
type Storage struct {
	workflowDao
	executionDao
	experimentDao
	templateDao
}

var _ persistence.Storage = new(Storage)

func NewStorage(pool *pgxpool.Pool) *Storage {
	base := baseDao{pool: pool}
	return &Storage{
		workflowDao:   workflowDao{base},
		executionDao:  executionDao{base},
		experimentDao: experimentDao{base},
		templateDao:   templateDao{base},
	}
}
