package dataset

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uwrit/leafgo/internal/domain/compiler"
)

// BuildSQL wraps an admin-authored dataset query so it returns rows only for
// the exported members of a cached cohort. Optional early/late bounds
// restrict rows on the dataset's date column.
func BuildSQL(q *Query, queryID uuid.UUID, opts compiler.Options, early, late *time.Time) (string, error) {
	if err := compiler.ValidateFragment(q.SQL); err != nil {
		return "", err
	}

	const alias = "_dataset"
	cohortAlias := "_cohort"

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s.*\nFROM (\n%s\n) AS %s", alias, q.SQL, alias)
	fmt.Fprintf(&b, "\nINNER JOIN %s.app.cohort AS %s\n  ON %s.%s = %s.person_id",
		opts.AppDB, cohortAlias, alias, opts.FieldPersonID, cohortAlias)
	fmt.Fprintf(&b, "\nWHERE %s.query_id = '%s'\n  AND %s.exported = true", cohortAlias, queryID, cohortAlias)

	if q.SqlFieldDate != "" {
		if err := compiler.ValidateFragment(q.SqlFieldDate); err != nil {
			return "", err
		}
		col := fmt.Sprintf("%s.%s", alias, q.SqlFieldDate)
		if early != nil {
			fmt.Fprintf(&b, "\n  AND %s >= '%s'", col, early.Format("2006-01-02 15:04:05"))
		}
		if late != nil {
			fmt.Fprintf(&b, "\n  AND %s <= '%s'", col, late.Format("2006-01-02 15:04:05"))
		}
	}
	return b.String(), nil
}
