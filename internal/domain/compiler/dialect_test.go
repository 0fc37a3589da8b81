package compiler

import (
	"testing"

	"github.com/uwrit/leafgo/internal/domain/panel"
)

func TestNewDialectNames(t *testing.T) {
	for _, name := range []string{"sqlserver", "mysql", "mariadb", "oracle", "postgres", "bigquery"} {
		d, err := NewDialect(name)
		if err != nil {
			t.Errorf("NewDialect(%q): %v", name, err)
			continue
		}
		if d.Now() == "" {
			t.Errorf("dialect %q has no Now()", name)
		}
	}
	if _, err := NewDialect("access97"); err == nil {
		t.Error("expected an error for an unsupported dialect")
	}
}

func TestDateAddPerDialect(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{"sqlserver", "DATEADD(MONTH, -6, GETDATE())"},
		{"mysql", "DATE_ADD(NOW(), INTERVAL -6 MONTH)"},
		{"oracle", "SYSDATE + INTERVAL '-6' MONTH"},
		{"postgres", "NOW() + INTERVAL '-6' MONTH"},
		{"bigquery", "DATETIME_SUB(CURRENT_DATETIME(), INTERVAL 6 MONTH)"},
	}
	for _, tt := range tests {
		d, err := NewDialect(tt.dialect)
		if err != nil {
			t.Fatalf("NewDialect(%q): %v", tt.dialect, err)
		}
		if got := d.DateAdd(panel.IncrementMonth, -6, d.Now()); got != tt.want {
			t.Errorf("%s DateAdd = %q, want %q", tt.dialect, got, tt.want)
		}
	}
}

func TestConvertPerDialect(t *testing.T) {
	tsql, _ := NewDialect("sqlserver")
	if got := tsql.Convert(ColGuid, "x"); got != "CONVERT(UNIQUEIDENTIFIER, x)" {
		t.Errorf("tsql Convert = %q", got)
	}
	pg, _ := NewDialect("postgres")
	if got := pg.Convert(ColGuid, "x"); got != "CAST(x AS UUID)" {
		t.Errorf("postgres Convert = %q", got)
	}
}
