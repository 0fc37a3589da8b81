package demographic

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured means the server has no demographics query installed.
var ErrNotConfigured = errors.New("demographic: no demographics query configured")

// Repo loads the administrator-authored demographics SQL. There is at most
// one per deployment.
type Repo interface {
	DemographicsSQL(ctx context.Context) (string, error)
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repo {
	return &repoPG{pool: pool}
}

func (r *repoPG) DemographicsSQL(ctx context.Context) (string, error) {
	var sql string
	err := r.pool.QueryRow(ctx, `SELECT sql_statement FROM app.demographic_query LIMIT 1`).Scan(&sql)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotConfigured
	}
	if err != nil {
		return "", fmt.Errorf("load demographics query: %w", err)
	}
	return sql, nil
}
