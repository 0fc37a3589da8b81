package compiler

import (
	"strings"

	"github.com/uwrit/leafgo/internal/domain/panel"
)

// illegalCommands are SQL keywords that never belong in an admin-authored
// fragment. Generated statements must stay read-only even when the clinical
// connection also runs under a read-only role.
var illegalCommands = []string{
	"UPDATE ", "TRUNCATE ", "EXEC ", "DROP ", "INSERT ",
	"CREATE ", "DELETE ", "MERGE ", "SET ",
}

// ValidateFragment scans one SQL fragment for illegal commands,
// case-insensitively.
func ValidateFragment(fragment string) error {
	upper := strings.ToUpper(fragment)
	for _, cmd := range illegalCommands {
		if strings.Contains(upper, cmd) {
			return panel.NewCompilerError("sql fragment contains illegal command %q", strings.TrimSpace(cmd))
		}
	}
	return nil
}

func validateItemFragments(item *panel.PanelItem) error {
	c := item.Concept
	for _, f := range []string{c.SqlSetFrom, c.SqlSetWhere, c.SqlFieldDate, c.SqlFieldNumeric, c.SqlFieldEventID} {
		if f == "" {
			continue
		}
		if err := ValidateFragment(f); err != nil {
			return err
		}
	}
	for _, s := range item.Specializations {
		if err := ValidateFragment(s.SqlSetWhere); err != nil {
			return err
		}
	}
	return nil
}
