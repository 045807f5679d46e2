package roster

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedEncoding = errors.New("file is neither UTF-8 nor Latin-1 text")
	ErrEmptyFile           = errors.New("file contains no student rows")
	ErrNoAssignmentColumns = errors.New("no assignment columns after Last Name, First Name, Email")
	ErrMalformedFile       = errors.New("file could not be parsed as CSV")
)

// InputError marks a problem with the upload as a whole. Nothing is written
// when parsing fails with one.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func inputError(err error) error {
	return &InputError{Err: err}
}

func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s (expected Last Name, First Name, Email first)", strings.Join(e.Columns, ", "))
}

type DuplicateColumnError struct {
	Column int
	Name   string
	Reason string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("column %d %q: %s", e.Column+1, e.Name, e.Reason)
}

type TooManyRowsError struct {
	Rows int
	Max  int
}

func (e *TooManyRowsError) Error() string {
	return fmt.Sprintf("file has %d student rows, the limit is %d", e.Rows, e.Max)
}

// RowError rejects a whole student row: it is skipped and counted once.
type RowError struct {
	Row    int
	Column string
	Value  string
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d, %s %q: %s", e.Row, e.Column, e.Value, e.Reason)
}

// CellError rejects a single score cell; the rest of the row is kept.
type CellError struct {
	Row    int
	Column string
	Value  string
	Reason string
}

func (e *CellError) Error() string {
	return fmt.Sprintf("row %d, column %q, value %q: %s", e.Row, e.Column, e.Value, e.Reason)
}
