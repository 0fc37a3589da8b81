package cohort

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/uwrit/leafgo/internal/domain/compiler"
	"github.com/uwrit/leafgo/internal/platform/db"
)

// Runner executes compiled sub-panel statements against the clinical
// database, at most maxParallel at a time. The first failure cancels every
// in-flight statement.
type Runner struct {
	exec        db.Executor
	maxParallel int64
	timeout     time.Duration
	log         zerolog.Logger
}

func NewRunner(exec db.Executor, maxParallel int, timeout time.Duration, log zerolog.Logger) *Runner {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Runner{
		exec:        exec,
		maxParallel: int64(maxParallel),
		timeout:     timeout,
		log:         log.With().Str("component", "cohort.runner").Logger(),
	}
}

// Run executes every statement and returns one partial per statement, in
// statement order.
func (r *Runner) Run(ctx context.Context, stmts []compiler.Statement) ([]PartialCount, error) {
	partials := make([]PartialCount, len(stmts))
	sem := semaphore.NewWeighted(r.maxParallel)
	g, gctx := errgroup.WithContext(ctx)

	for i, stmt := range stmts {
		i, stmt := i, stmt
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			started := time.Now()
			ids, err := r.runStatement(gctx, stmt.SQL)
			if err != nil {
				return fmt.Errorf("panel %d sub-panel %d: %w", stmt.PanelIndex, stmt.SubPanelIndex, err)
			}
			r.log.Debug().
				Int("panel", stmt.PanelIndex).
				Int("sub_panel", stmt.SubPanelIndex).
				Int("patients", len(ids)).
				Dur("elapsed", time.Since(started)).
				Msg("sub-panel statement complete")

			partials[i] = PartialCount{
				PatientIDs:    ids,
				IsInclusion:   stmt.IsInclusion,
				PanelIndex:    stmt.PanelIndex,
				SubPanelIndex: stmt.SubPanelIndex,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return partials, nil
}

func (r *Runner) runStatement(ctx context.Context, sql string) (map[string]struct{}, error) {
	rows, err := r.exec.Execute(ctx, sql, r.timeout)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		id, err := rows.StringCoercible(0)
		if err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
