package compiler

import (
	"fmt"
	"strings"

	"github.com/uwrit/leafgo/internal/domain/panel"
)

// ColumnType abstracts the handful of column types generated SQL needs to
// name or cast to.
type ColumnType int

const (
	ColString ColumnType = iota + 1
	ColInteger
	ColDecimal
	ColDate
	ColBoolean
	ColGuid
)

// Dialect renders the vendor-specific pieces of generated SQL. Everything
// else the compiler emits is common across the supported engines.
type Dialect interface {
	Name() string
	Now() string
	DateAdd(unit panel.DateIncrementType, interval int, date string) string
	ToSQLType(t ColumnType) string
	Convert(t ColumnType, value string) string
}

// NewDialect maps a configured dialect name to its implementation.
func NewDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlserver", "tsql":
		return tsqlDialect{}, nil
	case "mysql":
		return mysqlDialect{name: "mysql"}, nil
	case "mariadb":
		return mysqlDialect{name: "mariadb"}, nil
	case "oracle", "plsql":
		return plsqlDialect{}, nil
	case "postgres", "postgresql":
		return postgresDialect{}, nil
	case "bigquery":
		return bigqueryDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported sql dialect %q", name)
}

func sqlTime(unit panel.DateIncrementType) string {
	switch unit {
	case panel.IncrementMinute:
		return "MINUTE"
	case panel.IncrementHour:
		return "HOUR"
	case panel.IncrementDay:
		return "DAY"
	case panel.IncrementWeek:
		return "WEEK"
	case panel.IncrementMonth:
		return "MONTH"
	case panel.IncrementYear:
		return "YEAR"
	}
	return ""
}

type tsqlDialect struct{}

func (tsqlDialect) Name() string { return "sqlserver" }
func (tsqlDialect) Now() string  { return "GETDATE()" }

func (tsqlDialect) DateAdd(unit panel.DateIncrementType, interval int, date string) string {
	return fmt.Sprintf("DATEADD(%s, %d, %s)", sqlTime(unit), interval, date)
}

func (d tsqlDialect) Convert(t ColumnType, value string) string {
	return fmt.Sprintf("CONVERT(%s, %s)", d.ToSQLType(t), value)
}

func (tsqlDialect) ToSQLType(t ColumnType) string {
	switch t {
	case ColInteger:
		return "INT"
	case ColDecimal:
		return "DECIMAL(18,3)"
	case ColDate:
		return "DATETIME"
	case ColBoolean:
		return "BIT"
	case ColGuid:
		return "UNIQUEIDENTIFIER"
	}
	return "NVARCHAR(100)"
}

type mysqlDialect struct {
	name string
}

func (d mysqlDialect) Name() string { return d.name }
func (mysqlDialect) Now() string    { return "NOW()" }

func (mysqlDialect) DateAdd(unit panel.DateIncrementType, interval int, date string) string {
	return fmt.Sprintf("DATE_ADD(%s, INTERVAL %d %s)", date, interval, sqlTime(unit))
}

func (d mysqlDialect) Convert(t ColumnType, value string) string {
	return fmt.Sprintf("CONVERT(%s, %s)", value, d.ToSQLType(t))
}

func (mysqlDialect) ToSQLType(t ColumnType) string {
	switch t {
	case ColInteger:
		return "MEDIUMINT"
	case ColDecimal:
		return "FLOAT"
	case ColDate:
		return "DATETIME"
	case ColBoolean:
		return "MEDIUMINT"
	case ColGuid:
		return "CHAR(36)"
	}
	return "VARCHAR(100)"
}

type plsqlDialect struct{}

func (plsqlDialect) Name() string { return "oracle" }
func (plsqlDialect) Now() string  { return "SYSDATE" }

func (plsqlDialect) DateAdd(unit panel.DateIncrementType, interval int, date string) string {
	return fmt.Sprintf("%s + INTERVAL '%d' %s", date, interval, sqlTime(unit))
}

func (d plsqlDialect) Convert(t ColumnType, value string) string {
	return fmt.Sprintf("CAST(%s AS %s)", value, d.ToSQLType(t))
}

func (plsqlDialect) ToSQLType(t ColumnType) string {
	switch t {
	case ColInteger:
		return "INTEGER"
	case ColDecimal:
		return "FLOAT"
	case ColDate:
		return "DATE"
	case ColBoolean:
		return "BOOLEAN"
	case ColGuid:
		return "CHAR(36)"
	}
	return "NVARCHAR2(100)"
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }
func (postgresDialect) Now() string  { return "NOW()" }

func (postgresDialect) DateAdd(unit panel.DateIncrementType, interval int, date string) string {
	return fmt.Sprintf("%s + INTERVAL '%d' %s", date, interval, sqlTime(unit))
}

func (d postgresDialect) Convert(t ColumnType, value string) string {
	return fmt.Sprintf("CAST(%s AS %s)", value, d.ToSQLType(t))
}

func (postgresDialect) ToSQLType(t ColumnType) string {
	switch t {
	case ColInteger:
		return "INTEGER"
	case ColDecimal:
		return "NUMERIC(18,3)"
	case ColDate:
		return "TIMESTAMP"
	case ColBoolean:
		return "BOOLEAN"
	case ColGuid:
		return "UUID"
	}
	return "TEXT"
}

type bigqueryDialect struct{}

func (bigqueryDialect) Name() string { return "bigquery" }
func (bigqueryDialect) Now() string  { return "CURRENT_DATETIME()" }

func (bigqueryDialect) DateAdd(unit panel.DateIncrementType, interval int, date string) string {
	if interval < 0 {
		return fmt.Sprintf("DATETIME_SUB(%s, INTERVAL %d %s)", date, -interval, sqlTime(unit))
	}
	return fmt.Sprintf("DATETIME_ADD(%s, INTERVAL %d %s)", date, interval, sqlTime(unit))
}

func (d bigqueryDialect) Convert(t ColumnType, value string) string {
	return fmt.Sprintf("CAST(%s AS %s)", value, d.ToSQLType(t))
}

func (bigqueryDialect) ToSQLType(t ColumnType) string {
	switch t {
	case ColInteger:
		return "INT64"
	case ColDecimal:
		return "FLOAT64"
	case ColDate:
		return "DATETIME"
	case ColBoolean:
		return "BOOL"
	}
	return "STRING"
}
