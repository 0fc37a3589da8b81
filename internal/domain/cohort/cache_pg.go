package cohort

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/uwrit/leafgo/internal/platform/auth"
)

// cachePG stores cohorts in the application database. Cohorts larger than
// rowLimit record the query row only; their patient sets are too large to
// cache and downstream reuse refuses them.
type cachePG struct {
	pool        *pgxpool.Pool
	rowLimit    int
	exportLimit int
	log         zerolog.Logger
}

func NewCachePG(pool *pgxpool.Pool, rowLimit, exportLimit int, log zerolog.Logger) Cache {
	return &cachePG{
		pool:        pool,
		rowLimit:    rowLimit,
		exportLimit: exportLimit,
		log:         log.With().Str("component", "cohort.cache").Logger(),
	}
}

func (c *cachePG) Create(ctx context.Context, user *auth.UserContext, cohort *PatientCohort) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cohort create: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO app.query (id, owner, nonce, definition)
		VALUES ($1, $2, $3, $4)`,
		cohort.QueryID, user.UserID(), user.SessionNonce, joinStatements(cohort.SqlStatements))
	if err != nil {
		return fmt.Errorf("insert query %s: %w", cohort.QueryID, err)
	}

	if cohort.Count() <= c.rowLimit {
		seasoned := cohort.SeasonedPatients(c.exportLimit)
		rows := make([][]any, len(seasoned))
		for i, p := range seasoned {
			rows[i] = []any{cohort.QueryID, p.ID, p.Exported, p.Salt}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"app", "cohort"},
			[]string{"query_id", "person_id", "exported", "salt"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy cohort rows for %s: %w", cohort.QueryID, err)
		}
	} else {
		c.log.Info().
			Str("query_id", cohort.QueryID.String()).
			Int("count", cohort.Count()).
			Msg("cohort exceeds row limit, caching query only")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cohort create: %w", err)
	}
	return nil
}

func (c *cachePG) Fetch(ctx context.Context, user *auth.UserContext, queryID uuid.UUID) (*CachedCohort, error) {
	var owner string
	err := c.pool.QueryRow(ctx, `SELECT owner FROM app.query WHERE id = $1`, queryID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch query %s: %w", queryID, err)
	}
	if owner != user.UserID() {
		// Ownership mismatch reads exactly like absence.
		return nil, ErrNotFound
	}

	rows, err := c.pool.Query(ctx, `
		SELECT person_id, exported, salt
		FROM app.cohort
		WHERE query_id = $1`, queryID)
	if err != nil {
		return nil, fmt.Errorf("fetch cohort %s: %w", queryID, err)
	}
	defer rows.Close()

	cached := &CachedCohort{QueryID: queryID}
	for rows.Next() {
		var p SeasonedPatient
		if err := rows.Scan(&p.ID, &p.Exported, &p.Salt); err != nil {
			return nil, fmt.Errorf("scan cohort row: %w", err)
		}
		cached.Patients = append(cached.Patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read cohort %s: %w", queryID, err)
	}
	return cached, nil
}

// DeleteUnsaved drops every cohort the user's current session created but
// never saved, called on logout.
func (c *cachePG) DeleteUnsaved(ctx context.Context, user *auth.UserContext) error {
	_, err := c.pool.Exec(ctx, `
		DELETE FROM app.query
		WHERE owner = $1 AND nonce = $2 AND saved = false`,
		user.UserID(), user.SessionNonce)
	if err != nil {
		return fmt.Errorf("delete unsaved cohorts: %w", err)
	}
	return nil
}

func joinStatements(stmts []string) string {
	return strings.Join(stmts, ";\n")
}
