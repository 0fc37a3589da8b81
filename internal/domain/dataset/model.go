package dataset

import (
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound covers a dataset reference that does not exist.
var ErrNotFound = errors.New("dataset: not found")

// Shape names the row contract a dataset query must satisfy. The engine only
// requires the person identifier column; the rest of the shape is passed
// through to the client.
type Shape string

const (
	ShapeDemographics Shape = "demographics"
	ShapeEncounter    Shape = "encounter"
	ShapeObservation  Shape = "observation"
	ShapeCondition    Shape = "condition"
	ShapeProcedure    Shape = "procedure"
	ShapeImmunization Shape = "immunization"
	ShapeAllergy      Shape = "allergy"
	ShapeMedication   Shape = "medication"
)

// Query is an administrator-authored dataset definition.
type Query struct {
	ID          uuid.UUID
	UniversalID string
	Name        string
	Shape       Shape
	SQL         string
	// SqlFieldDate, when set, names the column early/late bounds apply to.
	SqlFieldDate string
}

// Result is one extracted dataset: the column list in statement order and
// the rows with patient identifiers already pseudonymized for de-identified
// callers.
type Result struct {
	QueryID uuid.UUID
	Shape   Shape
	Columns []string
	Rows    [][]any
}
