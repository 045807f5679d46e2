package ingest

import (
	"errors"
	"fmt"

	"github.com/shrimpsizemoose/gradeinsight/internal/roster"
)

const maxErrorDetails = 100

// Result is the per-upload summary returned to the uploader.
type Result struct {
	UploadID           string   `json:"upload_id"`
	StudentsProcessed  int      `json:"students_processed"`
	StudentsCreated    int      `json:"students_created"`
	StudentsUpdated    int      `json:"students_updated"`
	AssignmentsCreated int      `json:"assignments_created"`
	GradesCreated      int      `json:"grades_created"`
	GradesUpdated      int      `json:"grades_updated"`
	GradesSkipped      int      `json:"grades_skipped"`
	Errors             int      `json:"errors"`
	ErrorDetails       []string `json:"error_details"`
	Warnings           []string `json:"warnings,omitempty"`
}

func newResult(uploadID string) *Result {
	return &Result{UploadID: uploadID, ErrorDetails: []string{}}
}

func (r *Result) addError(err error) {
	r.Errors++
	switch {
	case len(r.ErrorDetails) < maxErrorDetails:
		r.ErrorDetails = append(r.ErrorDetails, err.Error())
	case len(r.ErrorDetails) == maxErrorDetails:
		r.ErrorDetails = append(r.ErrorDetails, "further errors omitted")
	}
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) apply(out *rowOutcome) {
	r.StudentsProcessed++
	if out.studentCreated {
		r.StudentsCreated++
	}
	if out.studentUpdated {
		r.StudentsUpdated++
	}
	r.AssignmentsCreated += len(out.assignments)
	r.GradesCreated += out.gradesCreated
	r.GradesUpdated += out.gradesUpdated
}

// Summary is the one-line message shown next to the stats.
func (r *Result) Summary() string {
	msg := fmt.Sprintf("Processed %d students: %d grades created, %d updated", r.StudentsProcessed, r.GradesCreated, r.GradesUpdated)
	if r.Errors > 0 {
		msg += fmt.Sprintf(", %d errors", r.Errors)
	}
	return msg
}

// PersistenceError aborts an upload: nothing from it was committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("upload not saved: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// DuplicateEntryError is recorded when a row still collides after its retry.
type DuplicateEntryError struct {
	Row   int
	Email string
	Err   error
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("row %d, Email %q: duplicate entry: %v", e.Row, e.Email, e.Err)
}

func (e *DuplicateEntryError) Unwrap() error {
	return e.Err
}

var ErrMissingTeacher = errors.New("teacher name is required")

func missingTeacher() error {
	return &roster.InputError{Err: ErrMissingTeacher}
}
