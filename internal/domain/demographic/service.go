package demographic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uwrit/leafgo/internal/domain/compiler"
	"github.com/uwrit/leafgo/internal/domain/dataset"
	"github.com/uwrit/leafgo/internal/platform/auth"
	"github.com/uwrit/leafgo/internal/platform/db"
)

// Columns the demographics query must expose. Additional columns are
// ignored.
const (
	colGender     = "gender"
	colBirthDate  = "birth_date"
	colIsDeceased = "is_deceased"
	colIsHispanic = "is_hispanic"
	colRace       = "race"
	colLanguage   = "language"
)

// Service computes demographic summaries for cached cohorts. The row-level
// rows stay inside the server for de-identified callers; only the aggregate
// leaves.
type Service struct {
	repo    Repo
	cohorts dataset.CohortFetcher
	exec    db.Executor
	opts    compiler.Options
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

func NewService(repo Repo, cohorts dataset.CohortFetcher, exec db.Executor, opts compiler.Options, timeout time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		cohorts: cohorts,
		exec:    exec,
		opts:    opts,
		timeout: timeout,
		now:     time.Now,
		log:     log.With().Str("component", "demographic.service").Logger(),
	}
}

// Demographics summarizes the exported members of the cohort. Identified
// callers also receive the row-level demographics.
func (s *Service) Demographics(ctx context.Context, user *auth.UserContext, queryID uuid.UUID) (*Result, error) {
	cached, err := s.cohorts.Fetch(ctx, user, queryID)
	if err != nil {
		return nil, err
	}

	adminSQL, err := s.repo.DemographicsSQL(ctx)
	if err != nil {
		return nil, err
	}
	if err := compiler.ValidateFragment(adminSQL); err != nil {
		return nil, err
	}

	sql := s.buildSQL(adminSQL, cached.QueryID)
	rows, err := s.exec.Execute(ctx, sql, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("execute demographics for %s: %w", queryID, err)
	}
	defer rows.Close()

	patients, err := scanPatients(rows, s.opts.FieldPersonID)
	if err != nil {
		return nil, err
	}

	res := &Result{Statistics: Aggregate(patients, s.now())}
	if user.Identified {
		res.Patients = patients
	}

	s.log.Info().
		Str("user", user.UserID()).
		Str("query_id", queryID.String()).
		Int("patients", len(patients)).
		Msg("demographics aggregated")
	return res, nil
}

func (s *Service) buildSQL(adminSQL string, queryID uuid.UUID) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT _demo.*\nFROM (\n%s\n) AS _demo", adminSQL)
	fmt.Fprintf(&b, "\nINNER JOIN %s.app.cohort AS _cohort\n  ON _demo.%s = _cohort.person_id",
		s.opts.AppDB, s.opts.FieldPersonID)
	fmt.Fprintf(&b, "\nWHERE _cohort.query_id = '%s'\n  AND _cohort.exported = true", queryID)
	return b.String()
}

func scanPatients(rows db.RowReader, fieldPersonID string) ([]Patient, error) {
	cols := rows.Columns()
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[strings.ToLower(c)] = i
	}
	personIdx, ok := idx[strings.ToLower(fieldPersonID)]
	if !ok {
		return nil, fmt.Errorf("demographics query does not expose the %s column", fieldPersonID)
	}

	var patients []Patient
	for rows.Next() {
		values := rows.Values()
		var p Patient

		id, err := rows.StringCoercible(personIdx)
		if err != nil {
			return nil, err
		}
		p.ID = id

		if i, ok := idx[colGender]; ok && values[i] != nil {
			if p.Gender, err = db.CoerceString(values[i], i); err != nil {
				return nil, err
			}
		}
		if i, ok := idx[colBirthDate]; ok && values[i] != nil {
			t, err := rows.Time(i)
			if err != nil {
				return nil, err
			}
			p.BirthDate = &t
		}
		if i, ok := idx[colIsDeceased]; ok && values[i] != nil {
			v, err := db.CoerceBool(values[i], i)
			if err != nil {
				return nil, err
			}
			p.IsDeceased = &v
		}
		if i, ok := idx[colIsHispanic]; ok && values[i] != nil {
			v, err := db.CoerceBool(values[i], i)
			if err != nil {
				return nil, err
			}
			p.IsHispanic = &v
		}
		if i, ok := idx[colRace]; ok && values[i] != nil {
			if p.Race, err = db.CoerceString(values[i], i); err != nil {
				return nil, err
			}
		}
		if i, ok := idx[colLanguage]; ok && values[i] != nil {
			if p.Language, err = db.CoerceString(values[i], i); err != nil {
				return nil, err
			}
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read demographics: %w", err)
	}
	return patients, nil
}
