package cohort

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uwrit/leafgo/internal/domain/compiler"
	"github.com/uwrit/leafgo/internal/domain/panel"
	"github.com/uwrit/leafgo/internal/platform/auth"
)

// CountResult is the outcome of one cohort count request. When preflight
// fails, Context carries the failed references and Count is nil.
type CountResult struct {
	QueryID uuid.UUID
	Context *panel.ValidationContext
	Count   *PatientCount
}

// CountService runs the full pipeline: resolve, validate, compile, execute,
// aggregate, cache, obfuscate. In gateway mode execution is skipped and an
// empty cohort is cached so federated callers still receive a query id.
type CountService struct {
	resolver   *panel.Resolver
	validator  *panel.Validator
	compiler   *compiler.Compiler
	runner     *Runner
	cache      Cache
	obfuscator Obfuscator
	gateway    bool
	log        zerolog.Logger
}

func NewCountService(
	resolver *panel.Resolver,
	validator *panel.Validator,
	comp *compiler.Compiler,
	runner *Runner,
	cache Cache,
	obfuscator Obfuscator,
	gateway bool,
	log zerolog.Logger,
) *CountService {
	return &CountService{
		resolver:   resolver,
		validator:  validator,
		compiler:   comp,
		runner:     runner,
		cache:      cache,
		obfuscator: obfuscator,
		gateway:    gateway,
		log:        log.With().Str("component", "cohort.count").Logger(),
	}
}

// Count executes def for user. A failed preflight is a successful call with
// Context.State set; compilation failures return a CompilerError.
func (s *CountService) Count(ctx context.Context, user *auth.UserContext, def *panel.Definition) (*CountResult, error) {
	started := time.Now()

	vc, err := s.resolver.Resolve(ctx, user, def)
	if err != nil {
		return nil, err
	}
	if !vc.PreflightPassed() {
		return &CountResult{QueryID: vc.QueryID, Context: vc}, nil
	}

	q, err := s.validator.Validate(vc)
	if err != nil {
		return nil, err
	}

	stmts, err := s.compiler.BuildPanelStatements(q)
	if err != nil {
		return nil, err
	}
	sqls := make([]string, len(stmts))
	for i, st := range stmts {
		sqls[i] = st.SQL
	}

	patients := map[string]struct{}{}
	if !s.gateway {
		partials, err := s.runner.Run(ctx, stmts)
		if err != nil {
			return nil, fmt.Errorf("execute cohort query %s: %w", q.QueryID, err)
		}
		patients = Aggregate(partials)
	}

	cohort := NewPatientCohort(q.QueryID, patients, sqls)
	if err := s.cache.Create(ctx, user, cohort); err != nil {
		return nil, fmt.Errorf("cache cohort %s: %w", q.QueryID, err)
	}

	count := &PatientCount{Value: cohort.Count()}
	if !s.gateway {
		// The zero placeholder a gateway returns is not a real
		// aggregate; masking it would report a fabricated count.
		s.obfuscator.Obfuscate(count, q)
	}

	s.log.Info().
		Str("user", user.UserID()).
		Str("query_id", q.QueryID.String()).
		Int("statements", len(stmts)).
		Bool("gateway", s.gateway).
		Dur("elapsed", time.Since(started)).
		Msg("cohort count complete")

	return &CountResult{QueryID: q.QueryID, Context: vc, Count: count}, nil
}

// Fetch returns a cached cohort for reuse by dataset and demographic
// extraction.
func (s *CountService) Fetch(ctx context.Context, user *auth.UserContext, queryID uuid.UUID) (*CachedCohort, error) {
	return s.cache.Fetch(ctx, user, queryID)
}

// Logout removes the session's unsaved cohorts.
func (s *CountService) Logout(ctx context.Context, user *auth.UserContext) error {
	return s.cache.DeleteUnsaved(ctx, user)
}
