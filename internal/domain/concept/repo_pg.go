package concept

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type readerPG struct{ pool *pgxpool.Pool }

func NewReaderPG(pool *pgxpool.Pool) Reader {
	return &readerPG{pool: pool}
}

const conceptCols = `id, universal_id, parent_id, root_id, external_id,
	is_numeric, is_event_based, is_encounter_based, is_specializable,
	sql_set_from, sql_set_where, sql_field_date, sql_field_numeric, sql_field_event_id,
	ui_display_name`

func scanConcept(row pgx.Row) (*Concept, error) {
	var c Concept
	var universalID, externalID, setWhere, fieldDate, fieldNumeric, fieldEventID *string
	err := row.Scan(&c.ID, &universalID, &c.ParentID, &c.RootID, &externalID,
		&c.IsNumeric, &c.IsEventBased, &c.IsEncounterBased, &c.IsSpecializable,
		&c.SqlSetFrom, &setWhere, &fieldDate, &fieldNumeric, &fieldEventID,
		&c.UIDisplayName)
	if err != nil {
		return nil, err
	}
	c.UniversalID = deref(universalID)
	c.ExternalID = deref(externalID)
	c.SqlSetWhere = deref(setWhere)
	c.SqlFieldDate = deref(fieldDate)
	c.SqlFieldNumeric = deref(fieldNumeric)
	c.SqlFieldEventID = deref(fieldEventID)
	return &c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *readerPG) ByIDs(ctx context.Context, ids []uuid.UUID) ([]*Concept, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+conceptCols+` FROM app.concept WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query concepts by id: %w", err)
	}
	return r.collect(ctx, rows)
}

func (r *readerPG) ByUniversalIDs(ctx context.Context, universalIDs []string) ([]*Concept, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+conceptCols+` FROM app.concept WHERE universal_id = ANY($1)`, universalIDs)
	if err != nil {
		return nil, fmt.Errorf("query concepts by universal id: %w", err)
	}
	return r.collect(ctx, rows)
}

func (r *readerPG) collect(ctx context.Context, rows pgx.Rows) ([]*Concept, error) {
	defer rows.Close()

	var out []*Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read concepts: %w", err)
	}
	if err := r.attachSpecializations(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *readerPG) attachSpecializations(ctx context.Context, concepts []*Concept) error {
	var specializable []uuid.UUID
	byID := make(map[uuid.UUID]*Concept, len(concepts))
	for _, c := range concepts {
		byID[c.ID] = c
		if c.IsSpecializable {
			specializable = append(specializable, c.ID)
		}
	}
	if len(specializable) == 0 {
		return nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT cg.concept_id, s.id, s.specialization_group_id, s.universal_id, s.sql_set_where, s.ui_display_text
		FROM app.concept_specialization_group cg
		JOIN app.specialization s ON s.specialization_group_id = cg.specialization_group_id
		WHERE cg.concept_id = ANY($1)
		ORDER BY cg.concept_id, s.specialization_group_id`, specializable)
	if err != nil {
		return fmt.Errorf("query specializations: %w", err)
	}
	defer rows.Close()

	groups := make(map[uuid.UUID]map[int]*SpecializationGroup)
	for rows.Next() {
		var conceptID uuid.UUID
		var sp Specialization
		var universalID *string
		if err := rows.Scan(&conceptID, &sp.ID, &sp.GroupID, &universalID, &sp.SqlSetWhere, &sp.UIDisplay); err != nil {
			return fmt.Errorf("scan specialization: %w", err)
		}
		sp.UniversalID = deref(universalID)
		if groups[conceptID] == nil {
			groups[conceptID] = make(map[int]*SpecializationGroup)
		}
		g, ok := groups[conceptID][sp.GroupID]
		if !ok {
			g = &SpecializationGroup{ID: sp.GroupID}
			groups[conceptID][sp.GroupID] = g
		}
		g.Specializations = append(g.Specializations, sp)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read specializations: %w", err)
	}

	for conceptID, byGroup := range groups {
		c := byID[conceptID]
		for _, g := range byGroup {
			c.SpecializationGroups = append(c.SpecializationGroups, *g)
		}
	}
	return nil
}
