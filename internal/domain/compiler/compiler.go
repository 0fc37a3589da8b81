package compiler

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/uwrit/leafgo/internal/domain/panel"
)

const (
	aliasPerson   = "_S"
	aliasUnion    = "_U"
	aliasSequence = "_T"

	colPersonID    = "person_id"
	colEncounterID = "encounter_id"
	colEventID     = "event_id"
	colEventDate   = "event_date"
	colItemOrd     = "item_ord"
)

// Statement is one executable sub-panel query. It selects a single column of
// patient identifiers; set algebra across statements happens in-process.
type Statement struct {
	SQL           string
	PanelIndex    int
	SubPanelIndex int
	IsInclusion   bool
}

// Compiler turns validated panels into per-sub-panel SQL statements in the
// configured dialect. Admin-authored fragments are interpolated verbatim
// after the illegal-command scan; user input never reaches the SQL text.
type Compiler struct {
	opts    Options
	dialect Dialect
	log     zerolog.Logger
}

func New(opts Options, dialect Dialect, log zerolog.Logger) *Compiler {
	return &Compiler{opts: opts, dialect: dialect, log: log.With().Str("component", "compiler").Str("dialect", dialect.Name()).Logger()}
}

// BuildPanelStatements compiles every sub-panel of the query. A statement is
// an inclusion when its panel and sub-panel inclusion flags agree.
func (c *Compiler) BuildPanelStatements(q *panel.CountQuery) ([]Statement, error) {
	var stmts []Statement
	for pi := range q.Panels {
		p := &q.Panels[pi]
		for si := range p.SubPanels {
			sp := &p.SubPanels[si]
			sql, err := c.BuildSubPanelSQL(p, sp)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, Statement{
				SQL:           sql,
				PanelIndex:    p.Index,
				SubPanelIndex: sp.Index,
				IsInclusion:   p.IncludePanel == sp.IncludeSubPanel,
			})
		}
	}
	c.log.Debug().Int("statements", len(stmts)).Msg("compiled panel statements")
	return stmts, nil
}

// BuildSubPanelSQL compiles one sub-panel to a statement selecting distinct
// patient identifiers.
func (c *Compiler) BuildSubPanelSQL(p *panel.Panel, sp *panel.SubPanel) (string, error) {
	for i := range sp.PanelItems {
		if err := validateItemFragments(&sp.PanelItems[i]); err != nil {
			return "", err
		}
	}
	if sp.JoinSequence != nil {
		return c.buildSequenceSQL(p, sp)
	}
	return c.buildPatientSQL(p, sp)
}

// buildPatientSQL unions the item selects and counts distinct matched items
// per patient. A single unconstrained item compiles to a bare select.
func (c *Compiler) buildPatientSQL(p *panel.Panel, sp *panel.SubPanel) (string, error) {
	if len(sp.PanelItems) == 1 && !sp.HasCountFilter() {
		sel, err := c.buildItemSelect(p, sp, &sp.PanelItems[0], 0, false)
		if err != nil {
			return "", err
		}
		return sel, nil
	}

	selects := make([]string, 0, len(sp.PanelItems))
	for i := range sp.PanelItems {
		sel, err := c.buildItemSelect(p, sp, &sp.PanelItems[i], i, false)
		if err != nil {
			return "", err
		}
		selects = append(selects, sel)
	}

	union := fmt.Sprintf("%s%d%d", aliasUnion, p.Index, sp.Index)
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s.%s\nFROM (\n%s\n) AS %s\nGROUP BY %s.%s",
		union, colPersonID, strings.Join(selects, "\nUNION ALL\n"), union, union, colPersonID)
	if sp.HasCountFilter() {
		fmt.Fprintf(&b, "\nHAVING COUNT(DISTINCT %s.%s) >= %d", union, colItemOrd, sp.MinimumCount)
	}
	return b.String(), nil
}

// buildSequenceSQL joins the two sequenced items on the sequence predicate
// and every remaining item on patient identity.
func (c *Compiler) buildSequenceSQL(p *panel.Panel, sp *panel.SubPanel) (string, error) {
	js := sp.JoinSequence
	first := itemByIndex(sp, js.FirstItemIndex)
	second := itemByIndex(sp, js.SecondItemIndex)
	if first == nil || second == nil {
		return "", panel.NewCompilerError("panel %d sub-panel %d sequence references missing items", p.Index, sp.Index)
	}

	alias := func(item *panel.PanelItem) string {
		return fmt.Sprintf("%s%d%d%d", aliasSequence, p.Index, sp.Index, item.Index)
	}
	a1, a2 := alias(first), alias(second)

	sel1, err := c.buildItemSelect(p, sp, first, first.Index, true)
	if err != nil {
		return "", err
	}
	sel2, err := c.buildItemSelect(p, sp, second, second.Index, true)
	if err != nil {
		return "", err
	}

	on, err := c.sequencePredicate(js, a1, a2)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s.%s\nFROM (\n%s\n) AS %s\nINNER JOIN (\n%s\n) AS %s\n  ON %s",
		a1, colPersonID, sel1, a1, sel2, a2, on)

	for i := range sp.PanelItems {
		item := &sp.PanelItems[i]
		if item.Index == first.Index || item.Index == second.Index {
			continue
		}
		sel, err := c.buildItemSelect(p, sp, item, item.Index, true)
		if err != nil {
			return "", err
		}
		ai := alias(item)
		fmt.Fprintf(&b, "\nINNER JOIN (\n%s\n) AS %s\n  ON %s.%s = %s.%s",
			sel, ai, a1, colPersonID, ai, colPersonID)
	}

	fmt.Fprintf(&b, "\nGROUP BY %s.%s", a1, colPersonID)
	if sp.HasCountFilter() {
		fmt.Fprintf(&b, "\nHAVING COUNT(DISTINCT %s.%s) >= %d", a2, sequenceCountColumn(js), sp.MinimumCount)
	}
	return b.String(), nil
}

// sequenceCountColumn picks the occurrence column for a minimum-count filter.
// It must be a column the second item's select is guaranteed to expose:
// encounter and event sequences do not require a date field, so they count
// the join key instead.
func sequenceCountColumn(js *panel.JoinSequence) string {
	switch js.Type {
	case panel.SequenceEncounter:
		return colEncounterID
	case panel.SequenceEvent:
		return colEventID
	}
	return colEventDate
}

func (c *Compiler) sequencePredicate(js *panel.JoinSequence, prec, curr string) (string, error) {
	person := fmt.Sprintf("%s.%s = %s.%s", prec, colPersonID, curr, colPersonID)
	precDate := prec + "." + colEventDate
	currDate := curr + "." + colEventDate

	switch js.Type {
	case panel.SequenceEncounter:
		return fmt.Sprintf("%s.%s = %s.%s", prec, colEncounterID, curr, colEncounterID), nil
	case panel.SequenceEvent:
		return fmt.Sprintf("%s.%s = %s.%s", prec, colEventID, curr, colEventID), nil
	case panel.SequencePlusMinus:
		back := c.dialect.DateAdd(js.IncrementType, -js.Increment, precDate)
		forward := c.dialect.DateAdd(js.IncrementType, js.Increment, precDate)
		return fmt.Sprintf("%s AND %s BETWEEN %s AND %s", person, currDate, back, forward), nil
	case panel.SequenceWithinFollowing:
		forward := c.dialect.DateAdd(js.IncrementType, js.Increment, precDate)
		return fmt.Sprintf("%s AND %s BETWEEN %s AND %s", person, currDate, precDate, forward), nil
	case panel.SequenceAnytimeFollowing:
		return fmt.Sprintf("%s AND %s > %s", person, currDate, precDate), nil
	}
	return "", panel.NewCompilerError("unknown sequence type %q", js.Type)
}

// buildItemSelect compiles one panel item to a select over its clinical set.
// Sequential selects also expose the encounter, event, and date columns under
// fixed aliases so sequence joins never touch concept-specific names.
func (c *Compiler) buildItemSelect(p *panel.Panel, sp *panel.SubPanel, item *panel.PanelItem, ord int, sequential bool) (string, error) {
	con := item.Concept
	alias := fmt.Sprintf("%s%d%d%d", aliasPerson, p.Index, sp.Index, item.Index)
	if sequential {
		alias = fmt.Sprintf("%s%d%d%d", aliasSequence, p.Index, sp.Index, item.Index) + "s"
	}

	cols := []string{fmt.Sprintf("%s AS %s", c.column(c.opts.FieldPersonID, alias), colPersonID)}
	if sequential {
		if con.IsEncounterBased {
			cols = append(cols, fmt.Sprintf("%s AS %s", c.column(c.opts.FieldEncounterID, alias), colEncounterID))
		}
		if con.SqlFieldEventID != "" {
			cols = append(cols, fmt.Sprintf("%s AS %s", c.column(con.SqlFieldEventID, alias), colEventID))
		}
		if con.SqlFieldDate != "" {
			cols = append(cols, fmt.Sprintf("%s AS %s", c.column(con.SqlFieldDate, alias), colEventDate))
		}
	} else {
		cols = append(cols, fmt.Sprintf("%d AS %s", ord, colItemOrd))
	}

	where, err := c.itemPredicates(p, item, alias)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s\nFROM %s AS %s", strings.Join(cols, ", "), c.substitute(con.SqlSetFrom, alias), alias)
	if len(where) > 0 {
		fmt.Fprintf(&b, "\nWHERE %s", strings.Join(where, "\n  AND "))
	}
	return b.String(), nil
}

func (c *Compiler) itemPredicates(p *panel.Panel, item *panel.PanelItem, alias string) ([]string, error) {
	con := item.Concept
	var where []string

	if con.SqlSetWhere != "" {
		where = append(where, c.substitute(con.SqlSetWhere, alias))
	}

	if p.IsDateFiltered() && con.SqlFieldDate != "" {
		col := c.column(con.SqlFieldDate, alias)
		start, err := c.dateExpression(p.DateFilter.Start, false)
		if err != nil {
			return nil, err
		}
		end, err := c.dateExpression(p.DateFilter.End, true)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("%s BETWEEN %s AND %s", col, start, end))
	}

	for _, spec := range item.Specializations {
		where = append(where, c.substitute(spec.SqlSetWhere, alias))
	}

	if item.UseNumericFilter() {
		pred, err := numericPredicate(c.column(con.SqlFieldNumeric, alias), item.NumericFilter)
		if err != nil {
			return nil, err
		}
		where = append(where, pred)
	}
	return where, nil
}

func numericPredicate(col string, nf *panel.NumericFilter) (string, error) {
	ops := map[panel.NumericOp]string{
		panel.NumericEq:  "=",
		panel.NumericGt:  ">",
		panel.NumericGte: ">=",
		panel.NumericLt:  "<",
		panel.NumericLte: "<=",
	}
	if nf.Op == panel.NumericBetween {
		if len(nf.Bounds) != 2 {
			return "", panel.NewCompilerError("between filter requires two bounds")
		}
		return fmt.Sprintf("%s BETWEEN %v AND %v", col, nf.Bounds[0], nf.Bounds[1]), nil
	}
	op, ok := ops[nf.Op]
	if !ok {
		return "", panel.NewCompilerError("unknown numeric operator %q", nf.Op)
	}
	if len(nf.Bounds) != 1 {
		return "", panel.NewCompilerError("operator %q requires one bound", nf.Op)
	}
	return fmt.Sprintf("%s %s %v", col, op, nf.Bounds[0]), nil
}

func (c *Compiler) dateExpression(b panel.DateBoundary, endOfDay bool) (string, error) {
	switch {
	case b.IncrementType == panel.IncrementNow:
		return c.dialect.Now(), nil
	case b.IncrementType == panel.IncrementSpecific:
		clock := "00:00:00"
		if endOfDay {
			clock = "23:59:59"
		}
		return fmt.Sprintf("'%s %s'", b.Date.Format("2006-01-02"), clock), nil
	case b.IncrementType.IsUnit():
		return c.dialect.DateAdd(b.IncrementType, b.Increment, c.dialect.Now()), nil
	}
	return "", panel.NewCompilerError("invalid date boundary type %q", b.IncrementType)
}

// substitute replaces the admin alias marker with the generated table alias.
func (c *Compiler) substitute(fragment, alias string) string {
	return strings.ReplaceAll(fragment, c.opts.Alias, alias)
}

// column qualifies a bare column name with the table alias. Fields that used
// the alias marker are already qualified after substitution.
func (c *Compiler) column(field, alias string) string {
	f := c.substitute(field, alias)
	if strings.Contains(f, ".") {
		return f
	}
	return alias + "." + f
}

func itemByIndex(sp *panel.SubPanel, index int) *panel.PanelItem {
	for i := range sp.PanelItems {
		if sp.PanelItems[i].Index == index {
			return &sp.PanelItems[i]
		}
	}
	return nil
}
