package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repo {
	return &repoPG{pool: pool}
}

const queryCols = `id, universal_id, name, shape, sql_statement, sql_field_date`

func (r *repoPG) ByID(ctx context.Context, id uuid.UUID) (*Query, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+queryCols+` FROM app.dataset_query WHERE id = $1`, id)
	return scanQuery(row)
}

func (r *repoPG) ByUniversalID(ctx context.Context, universalID string) (*Query, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+queryCols+` FROM app.dataset_query WHERE universal_id = $1`, universalID)
	return scanQuery(row)
}

func scanQuery(row pgx.Row) (*Query, error) {
	var q Query
	var universalID, fieldDate *string
	err := row.Scan(&q.ID, &universalID, &q.Name, &q.Shape, &q.SQL, &fieldDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan dataset query: %w", err)
	}
	if universalID != nil {
		q.UniversalID = *universalID
	}
	if fieldDate != nil {
		q.SqlFieldDate = *fieldDate
	}
	return &q, nil
}
