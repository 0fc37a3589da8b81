package preflight

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uwrit/leafgo/internal/domain/concept"
	"github.com/uwrit/leafgo/internal/platform/auth"
)

type repoPG struct {
	pool     *pgxpool.Pool
	concepts concept.Reader
}

func NewRepoPG(pool *pgxpool.Pool, concepts concept.Reader) Repo {
	return &repoPG{pool: pool, concepts: concepts}
}

// CheckConcepts resolves the whole batch in two statements: one for
// presence/constraints, one to hydrate the survivors.
func (r *repoPG) CheckConcepts(ctx context.Context, user *auth.UserContext, refs []concept.Ref) ([]ConceptCheckResult, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	present := make(map[string]uuid.UUID, len(refs))
	authorized := make(map[uuid.UUID]bool, len(refs))

	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.universal_id,
		       COALESCE(bool_or(cc.constraint_value IS NULL OR cc.constraint_value = $1), true) AS authorized
		FROM app.concept c
		LEFT JOIN app.concept_constraint cc ON cc.concept_id = c.id
		WHERE c.id = ANY($2) OR c.universal_id = ANY($3)
		GROUP BY c.id, c.universal_id`,
		user.UserID(), localIDs(refs), universalIDs(refs))
	if err != nil {
		return nil, fmt.Errorf("preflight concepts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var universalID *string
		var ok bool
		if err := rows.Scan(&id, &universalID, &ok); err != nil {
			return nil, fmt.Errorf("scan preflight concept: %w", err)
		}
		present[id.String()] = id
		if universalID != nil {
			present[*universalID] = id
		}
		authorized[id] = ok
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read preflight concepts: %w", err)
	}

	results := make([]ConceptCheckResult, 0, len(refs))
	var passing []uuid.UUID
	for _, ref := range refs {
		res := ConceptCheckResult{Ref: ref}
		if id, found := present[ref.String()]; found {
			res.IsPresent = true
			res.IsAuthorized = authorized[id]
			if res.Ok() {
				passing = append(passing, id)
			}
		}
		results = append(results, res)
	}

	if len(passing) > 0 {
		hydrated, err := r.concepts.ByIDs(ctx, passing)
		if err != nil {
			return nil, err
		}
		byID := make(map[uuid.UUID]*concept.Concept, len(hydrated))
		byUID := make(map[string]*concept.Concept, len(hydrated))
		for _, c := range hydrated {
			byID[c.ID] = c
			if c.UniversalID != "" {
				byUID[c.UniversalID] = c
			}
		}
		for i := range results {
			if !results[i].Ok() {
				continue
			}
			if results[i].Ref.UseUniversalID() {
				results[i].Concept = byUID[results[i].Ref.UniversalID]
			} else {
				results[i].Concept = byID[results[i].Ref.ID]
			}
		}
	}

	return results, nil
}

func (r *repoPG) CheckQueries(ctx context.Context, user *auth.UserContext, refs []QueryRef) ([]QueryCheckResult, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(refs))
	uids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.UseUniversalID() {
			uids = append(uids, ref.UniversalID)
		} else {
			ids = append(ids, ref.ID)
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, universal_id, owner
		FROM app.query
		WHERE id = ANY($1) OR universal_id = ANY($2)`, ids, uids)
	if err != nil {
		return nil, fmt.Errorf("preflight queries: %w", err)
	}
	defer rows.Close()

	type row struct {
		id    uuid.UUID
		owner string
	}
	found := make(map[string]row, len(refs))
	for rows.Next() {
		var rw row
		var universalID *string
		if err := rows.Scan(&rw.id, &universalID, &rw.owner); err != nil {
			return nil, fmt.Errorf("scan preflight query: %w", err)
		}
		found[rw.id.String()] = rw
		if universalID != nil {
			found[*universalID] = rw
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read preflight queries: %w", err)
	}

	results := make([]QueryCheckResult, 0, len(refs))
	for _, ref := range refs {
		res := QueryCheckResult{Ref: ref}
		if rw, ok := found[ref.String()]; ok {
			res.IsPresent = true
			// Saved queries are private to their owner.
			res.IsAuthorized = rw.owner == user.UserID()
			res.Ref.ID = rw.id
		}
		results = append(results, res)
	}
	return results, nil
}

func localIDs(refs []concept.Ref) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(refs))
	for _, r := range refs {
		if !r.UseUniversalID() {
			out = append(out, r.ID)
		}
	}
	return out
}

func universalIDs(refs []concept.Ref) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.UseUniversalID() {
			out = append(out, r.UniversalID)
		}
	}
	return out
}
