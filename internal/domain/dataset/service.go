package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uwrit/leafgo/internal/domain/cohort"
	"github.com/uwrit/leafgo/internal/domain/compiler"
	"github.com/uwrit/leafgo/internal/platform/auth"
	"github.com/uwrit/leafgo/internal/platform/db"
)

const urnPrefix = "urn:leaf:dataset:"

// CohortFetcher is the slice of the cohort cache dataset extraction needs.
type CohortFetcher interface {
	Fetch(ctx context.Context, user *auth.UserContext, queryID uuid.UUID) (*cohort.CachedCohort, error)
}

// Service extracts shaped rows for a previously executed cohort. Rows are
// limited to the cohort's exported members, and patient identifiers are
// salted pseudonyms unless the caller holds identified access.
type Service struct {
	repo    Repo
	cohorts CohortFetcher
	exec    db.Executor
	opts    compiler.Options
	timeout time.Duration
	log     zerolog.Logger
}

func NewService(repo Repo, cohorts CohortFetcher, exec db.Executor, opts compiler.Options, timeout time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		cohorts: cohorts,
		exec:    exec,
		opts:    opts,
		timeout: timeout,
		log:     log.With().Str("component", "dataset.service").Logger(),
	}
}

// Fetch runs the dataset identified by ref against the cohort identified by
// queryID. A missing or foreign cohort yields cohort.ErrNotFound; a missing
// dataset yields ErrNotFound.
func (s *Service) Fetch(ctx context.Context, user *auth.UserContext, queryID uuid.UUID, ref string, early, late *time.Time) (*Result, error) {
	cached, err := s.cohorts.Fetch(ctx, user, queryID)
	if err != nil {
		return nil, err
	}

	q, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	sql, err := BuildSQL(q, queryID, s.opts, early, late)
	if err != nil {
		return nil, err
	}

	rows, err := s.exec.Execute(ctx, sql, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("execute dataset %s: %w", q.ID, err)
	}
	defer rows.Close()

	cols := rows.Columns()
	personIdx := indexOf(cols, s.opts.FieldPersonID)
	if personIdx < 0 {
		return nil, fmt.Errorf("dataset %s does not expose the %s column", q.ID, s.opts.FieldPersonID)
	}

	result := &Result{QueryID: queryID, Shape: q.Shape, Columns: cols}
	for rows.Next() {
		id, err := rows.StringCoercible(personIdx)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(cols))
		copy(values, rows.Values())

		if !user.Identified {
			salt, ok := cached.SaltFor(id)
			if !ok {
				// Not exported; the join should have excluded it.
				continue
			}
			values[personIdx] = pseudonym(id, salt)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", q.ID, err)
	}

	s.log.Info().
		Str("user", user.UserID()).
		Str("query_id", queryID.String()).
		Str("dataset", q.Name).
		Int("rows", len(result.Rows)).
		Msg("dataset extracted")
	return result, nil
}

func (s *Service) lookup(ctx context.Context, ref string) (*Query, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.repo.ByID(ctx, id)
	}
	if strings.HasPrefix(ref, urnPrefix) {
		return s.repo.ByUniversalID(ctx, ref)
	}
	return nil, ErrNotFound
}

// pseudonym derives the export identifier for one patient. The salt is
// unique per query and patient, so identifiers never correlate across
// queries.
func pseudonym(id string, salt uuid.UUID) string {
	sum := sha256.Sum256([]byte(salt.String() + id))
	return hex.EncodeToString(sum[:16])
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}
