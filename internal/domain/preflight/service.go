package preflight

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/uwrit/leafgo/internal/domain/concept"
	"github.com/uwrit/leafgo/internal/platform/auth"
)

// Checker runs the preflight gate: every reference a definition carries is
// resolved for presence and authorization before any SQL is generated.
type Checker struct {
	repo Repo
	log  zerolog.Logger
}

func NewChecker(repo Repo, log zerolog.Logger) *Checker {
	return &Checker{repo: repo, log: log}
}

// Check resolves the full reference batch. I/O failures surface as errors;
// missing or unauthorized references are represented in the returned
// Resources instead.
func (c *Checker) Check(ctx context.Context, user *auth.UserContext, conceptRefs []concept.Ref, queryRefs []QueryRef) (*Resources, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conceptResults, err := c.repo.CheckConcepts(ctx, user, dedupConcepts(conceptRefs))
	if err != nil {
		return nil, err
	}
	queryResults, err := c.repo.CheckQueries(ctx, user, dedupQueries(queryRefs))
	if err != nil {
		return nil, err
	}

	res := &Resources{Concepts: conceptResults, Queries: queryResults}
	if !res.Ok() {
		c.log.Info().
			Str("user", user.UserID()).
			Interface("errors", res.Errors()).
			Msg("preflight check failed")
	}
	return res, nil
}

func dedupConcepts(refs []concept.Ref) []concept.Ref {
	seen := make(map[string]bool, len(refs))
	out := refs[:0:0]
	for _, r := range refs {
		if k := r.String(); !seen[k] {
			seen[k] = true
			out = append(out, r)
		}
	}
	return out
}

func dedupQueries(refs []QueryRef) []QueryRef {
	seen := make(map[string]bool, len(refs))
	out := refs[:0:0]
	for _, r := range refs {
		if k := r.String(); !seen[k] {
			seen[k] = true
			out = append(out, r)
		}
	}
	return out
}
