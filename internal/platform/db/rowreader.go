package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RowReader is the uniform result surface the engine consumes regardless of
// which warehouse produced the rows. Clinical warehouses disagree on native
// column typing (booleans stored as 0/1 integers, GUIDs stored as text), so
// readers expose explicit coercible accessors rather than leaving each call
// site to branch on the driver's dynamic type.
type RowReader interface {
	// Next advances to the next row. It returns false when no rows remain
	// or an error occurred; check Err after the loop.
	Next() bool
	Err() error
	Close()

	Columns() []string
	// Values returns the raw driver values of the current row.
	Values() []any

	String(i int) (string, error)
	Int64(i int) (int64, error)
	Float64(i int) (float64, error)
	Time(i int) (time.Time, error)

	// BoolCoercible accepts a native boolean, a 0/1 integer, or "0"/"1"
	// text.
	BoolCoercible(i int) (bool, error)
	// StringCoercible renders any scalar column as its canonical string
	// form: text verbatim, GUIDs lowercased, integers base-10.
	StringCoercible(i int) (string, error)
}

// pgxRowReader adapts pgx.Rows to RowReader.
type pgxRowReader struct {
	rows    pgx.Rows
	cols    []string
	current []any
	err     error
	cancel  func()
}

// NewPgxRowReader wraps pgx rows. cancel, if non-nil, is invoked on Close
// to release the statement's timeout context.
func NewPgxRowReader(rows pgx.Rows, cancel func()) RowReader {
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return &pgxRowReader{rows: rows, cols: cols, cancel: cancel}
}

func (r *pgxRowReader) Next() bool {
	if r.err != nil {
		return false
	}
	if !r.rows.Next() {
		r.err = r.rows.Err()
		return false
	}
	vals, err := r.rows.Values()
	if err != nil {
		r.err = err
		return false
	}
	r.current = vals
	return true
}

func (r *pgxRowReader) Err() error      { return r.err }
func (r *pgxRowReader) Columns() []string { return r.cols }
func (r *pgxRowReader) Values() []any   { return r.current }

func (r *pgxRowReader) Close() {
	r.rows.Close()
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *pgxRowReader) value(i int) (any, error) {
	if r.current == nil {
		return nil, fmt.Errorf("db: no current row")
	}
	if i < 0 || i >= len(r.current) {
		return nil, fmt.Errorf("db: column ordinal %d out of range", i)
	}
	return r.current[i], nil
}

func (r *pgxRowReader) String(i int) (string, error) {
	v, err := r.value(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("db: column %d is %T, not string", i, v)
	}
	return s, nil
}

func (r *pgxRowReader) Int64(i int) (int64, error) {
	v, err := r.value(i)
	if err != nil {
		return 0, err
	}
	return toInt64(v, i)
}

func (r *pgxRowReader) Float64(i int) (float64, error) {
	v, err := r.value(i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	}
	return 0, fmt.Errorf("db: column %d is %T, not numeric", i, v)
}

func (r *pgxRowReader) Time(i int) (time.Time, error) {
	v, err := r.value(i)
	if err != nil {
		return time.Time{}, err
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("db: column %d is %T, not time", i, v)
	}
	return t, nil
}

func (r *pgxRowReader) BoolCoercible(i int) (bool, error) {
	v, err := r.value(i)
	if err != nil {
		return false, err
	}
	return CoerceBool(v, i)
}

func (r *pgxRowReader) StringCoercible(i int) (string, error) {
	v, err := r.value(i)
	if err != nil {
		return "", err
	}
	return CoerceString(v, i)
}

// CoerceBool implements the coercible-boolean contract shared by all
// readers: native bool, 0/1 integer, or "0"/"1"/"true"/"false" text.
func CoerceBool(v any, i int) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "t", "y":
			return true, nil
		case "0", "false", "f", "n":
			return false, nil
		}
		return false, fmt.Errorf("db: column %d text %q is not boolean", i, b)
	}
	if n, err := toInt64(v, i); err == nil {
		switch n {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, fmt.Errorf("db: column %d integer %d is not boolean", i, n)
	}
	return false, fmt.Errorf("db: column %d is %T, not coercible to bool", i, v)
}

// CoerceString renders any scalar value in canonical string form.
func CoerceString(v any, i int) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		// pgx returns uuid columns as [16]byte-backed slices.
		if len(s) == 16 {
			if id, err := uuid.FromBytes(s); err == nil {
				return id.String(), nil
			}
		}
		return string(s), nil
	case [16]byte:
		return uuid.UUID(s).String(), nil
	case uuid.UUID:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	case time.Time:
		return s.Format(time.RFC3339), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), nil
	}
	if n, err := toInt64(v, i); err == nil {
		return strconv.FormatInt(n, 10), nil
	}
	return "", fmt.Errorf("db: column %d is %T, not coercible to string", i, v)
}

func toInt64(v any, i int) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	}
	return 0, fmt.Errorf("db: column %d is %T, not integer", i, v)
}
