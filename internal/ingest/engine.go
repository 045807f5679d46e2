package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/gradeinsight/internal/metrics"
	"github.com/shrimpsizemoose/gradeinsight/internal/models"
	"github.com/shrimpsizemoose/gradeinsight/internal/roster"
	"github.com/shrimpsizemoose/gradeinsight/internal/store"
)

type Options struct {
	DefaultMaxPoints  float64
	ExtraCreditFactor float64
	MaxRows           int
	Timeout           time.Duration
}

type Request struct {
	TenantID    string
	TeacherName string
	ClassTag    string
	TagIDs      []int64
	NewTags     []string
	Data        []byte
}

// Engine reconciles parsed rosters with the stored students, assignments
// and grades of one tenant.
type Engine struct {
	store     store.GradeStore
	validator *roster.Validator
	opts      Options

	// OnCommit runs after an upload has been committed.
	OnCommit func(ctx context.Context, tenantID string)
}

func NewEngine(s store.GradeStore, opts Options) *Engine {
	if opts.DefaultMaxPoints <= 0 {
		opts.DefaultMaxPoints = models.DefaultMaxPoints
	}
	return &Engine{
		store:     s,
		validator: roster.NewValidator(opts.ExtraCreditFactor),
		opts:      opts,
	}
}

// Import parses an upload and writes it in a single transaction. Rows that
// fail validation are skipped and reported in the Result. An *roster.InputError
// means nothing was read; a *PersistenceError means nothing was written.
func (e *Engine) Import(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	tenantID := req.TenantID

	teacherName := strings.TrimSpace(req.TeacherName)
	if teacherName == "" {
		metrics.UploadsTotal.WithLabelValues(tenantID, "rejected").Inc()
		return nil, missingTeacher()
	}
	if err := (&models.Teacher{Name: teacherName}).Validate(); err != nil {
		metrics.UploadsTotal.WithLabelValues(tenantID, "rejected").Inc()
		return nil, &roster.InputError{Err: fmt.Errorf("invalid teacher name: %w", err)}
	}

	parsed, err := roster.Parse(req.Data, roster.ParseOptions{
		DefaultMaxPoints: e.opts.DefaultMaxPoints,
		MaxRows:          e.opts.MaxRows,
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(tenantID, "rejected").Inc()
		return nil, err
	}
	if err := checkAssignments(parsed.Assignments); err != nil {
		metrics.UploadsTotal.WithLabelValues(tenantID, "rejected").Inc()
		return nil, err
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	result := newResult(uuid.NewString())
	result.Warnings = append(result.Warnings, parsed.Warnings...)

	tx, err := e.store.BeginUpload(ctx, tenantID)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(tenantID, "failed").Inc()
		return nil, persistenceError("begin", err)
	}
	defer tx.Rollback()

	u := &upload{
		tx:          tx,
		validator:   e.validator,
		result:      result,
		classTag:    sql.NullString{String: strings.TrimSpace(req.ClassTag), Valid: strings.TrimSpace(req.ClassTag) != ""},
		assignments: make(map[string]*models.Assignment),
	}

	if err := u.prepare(ctx, teacherName, req.TagIDs, req.NewTags); err != nil {
		return nil, e.fail(tenantID, result, "prepare", err)
	}

	for _, row := range parsed.Rows {
		if err := u.importRow(ctx, row, parsed.Assignments); err != nil {
			return nil, e.fail(tenantID, result, fmt.Sprintf("row %d", row.Number), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, e.fail(tenantID, result, "commit", err)
	}

	e.publish(tenantID, result, u, time.Since(start))
	logger.Info.Printf("[%s] upload %s by %q: %s (%d students created, %d assignments created)",
		tenantID, result.UploadID, teacherName, result.Summary(), result.StudentsCreated, result.AssignmentsCreated)

	if e.OnCommit != nil {
		e.OnCommit(ctx, tenantID)
	}
	return result, nil
}

func (e *Engine) fail(tenantID string, result *Result, op string, err error) error {
	metrics.UploadsTotal.WithLabelValues(tenantID, "failed").Inc()
	logger.Error.Printf("[%s] upload %s rolled back at %s: %v", tenantID, result.UploadID, op, err)
	return persistenceError(op, err)
}

func (e *Engine) publish(tenantID string, result *Result, u *upload, elapsed time.Duration) {
	metrics.UploadsTotal.WithLabelValues(tenantID, "ok").Inc()
	metrics.UploadDuration.WithLabelValues(tenantID).Observe(elapsed.Seconds())
	metrics.RowsTotal.WithLabelValues(tenantID, "imported").Add(float64(result.StudentsProcessed))
	metrics.RowsTotal.WithLabelValues(tenantID, "rejected").Add(float64(u.rejected))
	metrics.GradeWritesTotal.WithLabelValues(tenantID, "created").Add(float64(result.GradesCreated))
	metrics.GradeWritesTotal.WithLabelValues(tenantID, "updated").Add(float64(result.GradesUpdated))
	hist := metrics.ScorePercentHistogram.WithLabelValues(tenantID)
	for _, p := range u.percents {
		hist.Observe(p)
	}
}

// upload holds the state of one Import call.
type upload struct {
	tx        store.UploadTx
	validator *roster.Validator
	result    *Result

	teacher  *models.Teacher
	classTag sql.NullString
	tags     []models.Tag

	// assignments by name, only entities known to survive the current savepoint
	assignments map[string]*models.Assignment
	percents    []float64
	// rows skipped as a whole
	rejected int
}

type scoreCell struct {
	column roster.AssignmentColumn
	score  float64
}

// rowOutcome collects what a row wrote; it is applied only once the row's
// savepoint is released.
type rowOutcome struct {
	studentCreated bool
	studentUpdated bool
	assignments    []*models.Assignment
	gradesCreated  int
	gradesUpdated  int
	percents       []float64
}

func (u *upload) prepare(ctx context.Context, teacherName string, tagIDs []int64, newTags []string) error {
	existing, err := u.tx.ListAssignments(ctx)
	if err != nil {
		return err
	}
	for i := range existing {
		u.assignments[existing[i].Name] = &existing[i]
	}

	u.teacher, err = u.teacherByName(ctx, teacherName)
	if err != nil {
		return err
	}

	tags, err := u.tx.GetTagsByIDs(ctx, tagIDs)
	if err != nil {
		return err
	}
	if len(tags) < len(uniqueIDs(tagIDs)) {
		u.result.addWarning("%d selected tags do not exist and were ignored", len(uniqueIDs(tagIDs))-len(tags))
	}
	u.tags = tags

	seen := make(map[string]bool)
	for _, t := range tags {
		seen[t.Name] = true
	}
	for _, raw := range newTags {
		name := models.NormalizeTagName(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		if err := models.Validator().Struct(&models.Tag{Name: name}); err != nil {
			u.result.addWarning("tag %q ignored: %v", raw, err)
			continue
		}
		tag, err := u.tagByName(ctx, name)
		if err != nil {
			return err
		}
		u.tags = append(u.tags, *tag)
	}
	return nil
}

func (u *upload) teacherByName(ctx context.Context, name string) (*models.Teacher, error) {
	teacher, err := u.tx.GetTeacherByName(ctx, name)
	if err != nil || teacher != nil {
		return teacher, err
	}

	teacher = &models.Teacher{Name: name}
	err = u.savepoint(ctx, "teacher", func() error {
		return u.tx.CreateTeacher(ctx, teacher)
	})
	if errors.Is(err, store.ErrDuplicateEntry) {
		return u.tx.GetTeacherByName(ctx, name)
	}
	return teacher, err
}

func (u *upload) tagByName(ctx context.Context, name string) (*models.Tag, error) {
	tag, err := u.tx.GetTagByName(ctx, name)
	if err != nil || tag != nil {
		return tag, err
	}

	tag = &models.Tag{Name: name}
	err = u.savepoint(ctx, "tag", func() error {
		return u.tx.CreateTag(ctx, tag)
	})
	if errors.Is(err, store.ErrDuplicateEntry) {
		return u.tx.GetTagByName(ctx, name)
	}
	return tag, err
}

// savepoint runs fn so that a failure undoes only fn's writes.
func (u *upload) savepoint(ctx context.Context, name string, fn func() error) error {
	if err := u.tx.Savepoint(ctx, name); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := u.tx.RollbackToSavepoint(ctx, name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		if relErr := u.tx.ReleaseSavepoint(ctx, name); relErr != nil {
			return errors.Join(err, relErr)
		}
		return err
	}
	return u.tx.ReleaseSavepoint(ctx, name)
}

// importRow returns an error only when the whole upload has to be aborted.
func (u *upload) importRow(ctx context.Context, row roster.Row, columns []roster.AssignmentColumn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	student, err := u.validator.ValidateStudent(row)
	if err != nil {
		u.result.addError(err)
		u.rejected++
		logger.Debug.Printf("skipping row: %v", err)
		return nil
	}

	var scores []scoreCell
	for i, col := range columns {
		// scores are bounded by the stored max points once the assignment exists
		if a, ok := u.assignments[col.Name]; ok {
			col.MaxPoints = a.MaxPoints
		}
		score, ok, err := u.validator.ParseScore(row, i, col)
		if err != nil {
			u.result.addError(err)
			continue
		}
		if !ok {
			u.result.GradesSkipped++
			continue
		}
		scores = append(scores, scoreCell{column: col, score: score})
	}

	name := fmt.Sprintf("row_%d", row.Number)
	for attempt := 1; ; attempt++ {
		var out *rowOutcome
		err := u.savepoint(ctx, name, func() error {
			var err error
			out, err = u.writeRow(ctx, *student, scores)
			return err
		})
		if err == nil {
			u.commitRow(out)
			return nil
		}
		if !errors.Is(err, store.ErrDuplicateEntry) {
			return err
		}
		if attempt == 2 {
			u.result.addError(&DuplicateEntryError{Row: row.Number, Email: student.Email, Err: err})
			u.rejected++
			return nil
		}
		logger.Debug.Printf("row %d hit a concurrent write, retrying: %v", row.Number, err)
	}
}

func (u *upload) commitRow(out *rowOutcome) {
	for _, a := range out.assignments {
		u.assignments[a.Name] = a
	}
	u.percents = append(u.percents, out.percents...)
	u.result.apply(out)
}

func (u *upload) writeRow(ctx context.Context, candidate models.Student, scores []scoreCell) (*rowOutcome, error) {
	out := &rowOutcome{}

	student, err := u.tx.GetStudentByEmail(ctx, candidate.Email)
	if err != nil {
		return nil, err
	}
	switch {
	case student == nil:
		student = &candidate
		if err := u.tx.CreateStudent(ctx, student); err != nil {
			return nil, err
		}
		out.studentCreated = true
	case student.FirstName != candidate.FirstName || student.LastName != candidate.LastName:
		student.FirstName, student.LastName = candidate.FirstName, candidate.LastName
		if err := u.tx.UpdateStudentNames(ctx, student); err != nil {
			return nil, err
		}
		out.studentUpdated = true
	}

	for _, s := range scores {
		assignment, err := u.assignment(ctx, s.column, out)
		if err != nil {
			return nil, err
		}

		grade, err := u.tx.GetGrade(ctx, student.ID, assignment.ID)
		if err != nil {
			return nil, err
		}
		if grade == nil {
			grade = &models.Grade{
				StudentID:    student.ID,
				TeacherID:    u.teacher.ID,
				AssignmentID: assignment.ID,
				Score:        s.score,
				ClassTag:     u.classTag,
			}
			if err := u.tx.CreateGrade(ctx, grade); err != nil {
				return nil, err
			}
			out.gradesCreated++
		} else {
			grade.Score = s.score
			grade.TeacherID = u.teacher.ID
			grade.ClassTag = u.classTag
			if err := u.tx.UpdateGrade(ctx, grade); err != nil {
				return nil, err
			}
			out.gradesUpdated++
		}
		out.percents = append(out.percents, models.Percentage(s.score, assignment.MaxPoints))
	}
	return out, nil
}

// assignment finds or creates the assignment for a column. Metadata from the
// file only applies when the assignment is created.
func (u *upload) assignment(ctx context.Context, col roster.AssignmentColumn, out *rowOutcome) (*models.Assignment, error) {
	if a, ok := u.assignments[col.Name]; ok {
		return a, nil
	}
	for _, a := range out.assignments {
		if a.Name == col.Name {
			return a, nil
		}
	}

	// another upload may have created it since the cache was loaded
	found, err := u.tx.GetAssignmentByName(ctx, col.Name)
	if err != nil {
		return nil, err
	}
	if found != nil {
		u.assignments[found.Name] = found
		return found, nil
	}

	a := &models.Assignment{Name: col.Name, MaxPoints: col.MaxPoints, Date: col.Date}
	if err := u.tx.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}
	for _, tag := range u.tags {
		if err := u.tx.AttachTag(ctx, a.ID, tag.ID); err != nil {
			return nil, err
		}
	}
	out.assignments = append(out.assignments, a)
	return a, nil
}

// checkAssignments applies the assignment model rules to the header before
// anything is written.
func checkAssignments(columns []roster.AssignmentColumn) error {
	for _, col := range columns {
		a := models.Assignment{Name: col.Name, MaxPoints: col.MaxPoints, Date: col.Date}
		if err := a.Validate(); err != nil {
			return &roster.InputError{Err: fmt.Errorf("assignment column %q: %w", col.Name, err)}
		}
	}
	return nil
}

func uniqueIDs(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
