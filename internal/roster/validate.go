package roster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
)

const DefaultExtraCreditFactor = 1.5

// Spellings spreadsheet tools use for "no value".
var missingValues = map[string]bool{
	"":       true,
	"nan":    true,
	"-nan":   true,
	"n/a":    true,
	"na":     true,
	"#n/a":   true,
	"null":   true,
	"none":   true,
	"<na>":   true,
	"#value": true,
}

type Validator struct {
	ExtraCreditFactor float64
}

func NewValidator(extraCreditFactor float64) *Validator {
	if extraCreditFactor <= 0 {
		extraCreditFactor = DefaultExtraCreditFactor
	}
	return &Validator{ExtraCreditFactor: extraCreditFactor}
}

// ValidateStudent turns a row into a normalized student or a *RowError
// describing the first field that failed.
func (v *Validator) ValidateStudent(row Row) (*models.Student, error) {
	student := &models.Student{
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Email:     row.Email,
	}
	student.Normalize()

	err := student.Validate()
	if err == nil {
		return student, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return nil, &RowError{Row: row.Number, Column: "row", Reason: err.Error()}
	}
	fe := verrs[0]
	return nil, &RowError{
		Row:    row.Number,
		Column: fe.Field(),
		Value:  fmt.Sprint(fe.Value()),
		Reason: describe(fe),
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "personname":
		return "may only contain letters, spaces, hyphens and apostrophes"
	case "email":
		return "is not a valid email address"
	case "max":
		return fmt.Sprintf("is longer than %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// ParseScore reads the cell for column i of row. ok is false for empty
// cells, which are skipped without an error.
func (v *Validator) ParseScore(row Row, i int, column AssignmentColumn) (score float64, ok bool, err error) {
	raw := ""
	if i < len(row.Cells) {
		raw = strings.TrimSpace(row.Cells[i])
	}
	if missingValues[strings.ToLower(raw)] {
		return 0, false, nil
	}

	cellErr := func(reason string) error {
		return &CellError{Row: row.Number, Column: column.Name, Value: raw, Reason: reason}
	}

	score, err = parseNumber(raw)
	if err != nil {
		return 0, false, cellErr("score is not a number")
	}
	if score < 0 {
		return 0, false, cellErr("score is negative")
	}
	limit := column.MaxPoints * v.ExtraCreditFactor
	if score > limit+1e-9 {
		return 0, false, cellErr(fmt.Sprintf("score exceeds %g (max points %g x %g)", limit, column.MaxPoints, v.ExtraCreditFactor))
	}
	return score, true, nil
}
