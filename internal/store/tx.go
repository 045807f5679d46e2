package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
)

// UploadTx is the unit of work an upload runs in. Every statement is scoped
// to the tenant the transaction was opened for.
type UploadTx interface {
	Commit() error
	Rollback() error

	Savepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error

	GetTeacherByName(ctx context.Context, name string) (*models.Teacher, error)
	CreateTeacher(ctx context.Context, teacher *models.Teacher) error

	GetStudentByEmail(ctx context.Context, email string) (*models.Student, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	UpdateStudentNames(ctx context.Context, student *models.Student) error

	ListAssignments(ctx context.Context) ([]models.Assignment, error)
	GetAssignmentByName(ctx context.Context, name string) (*models.Assignment, error)
	CreateAssignment(ctx context.Context, assignment *models.Assignment) error

	GetGrade(ctx context.Context, studentID, assignmentID int64) (*models.Grade, error)
	CreateGrade(ctx context.Context, grade *models.Grade) error
	UpdateGrade(ctx context.Context, grade *models.Grade) error

	GetTagsByIDs(ctx context.Context, ids []int64) ([]models.Tag, error)
	GetTagByName(ctx context.Context, name string) (*models.Tag, error)
	CreateTag(ctx context.Context, tag *models.Tag) error
	AttachTag(ctx context.Context, assignmentID, tagID int64) error
}

type Tx struct {
	tx       *sqlx.Tx
	base     *BaseStore
	tenantID string
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upload: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to rollback upload: %w", err)
	}
	return nil
}

func (t *Tx) q(query string) string {
	return t.base.Converter(query)
}

// savepoint names are generated by the engine, never user input
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	return nil
}

func (t *Tx) RollbackToSavepoint(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to rollback to savepoint %s: %w", name, err)
	}
	return nil
}

func (t *Tx) ReleaseSavepoint(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

func (t *Tx) GetTeacherByName(ctx context.Context, name string) (*models.Teacher, error) {
	var teacher models.Teacher
	err := t.tx.GetContext(ctx, &teacher, t.q(`
		SELECT id, name, email, tenant_id, created_at, updated_at
		FROM teachers
		WHERE tenant_id = ? AND name = ?
	`), t.tenantID, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get teacher: %w", err)
	}
	return &teacher, nil
}

func (t *Tx) CreateTeacher(ctx context.Context, teacher *models.Teacher) error {
	now := time.Now().UTC()
	teacher.TenantID = t.tenantID
	teacher.CreatedAt, teacher.UpdatedAt = now, now

	err := t.tx.QueryRowxContext(ctx, t.q(`
		INSERT INTO teachers (name, email, tenant_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), teacher.Name, teacher.Email, teacher.TenantID, now, now).Scan(&teacher.ID)
	return t.base.classify("failed to create teacher", err)
}

func (t *Tx) GetStudentByEmail(ctx context.Context, email string) (*models.Student, error) {
	var student models.Student
	err := t.tx.GetContext(ctx, &student, t.q(`
		SELECT id, first_name, last_name, email, tenant_id, created_at, updated_at
		FROM students
		WHERE tenant_id = ? AND email = ?
	`), t.tenantID, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &student, nil
}

func (t *Tx) CreateStudent(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	student.TenantID = t.tenantID
	student.CreatedAt, student.UpdatedAt = now, now

	err := t.tx.QueryRowxContext(ctx, t.q(`
		INSERT INTO students (first_name, last_name, email, tenant_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), student.FirstName, student.LastName, student.Email, student.TenantID, now, now).Scan(&student.ID)
	return t.base.classify("failed to create student", err)
}

func (t *Tx) UpdateStudentNames(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, t.q(`
		UPDATE students
		SET first_name = ?, last_name = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`), student.FirstName, student.LastName, student.UpdatedAt, student.ID, t.tenantID)
	return t.base.classify("failed to update student", err)
}

func (t *Tx) ListAssignments(ctx context.Context) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := t.tx.SelectContext(ctx, &assignments, t.q(`
		SELECT id, name, tenant_id, max_points, date, description, created_at, updated_at
		FROM assignments
		WHERE tenant_id = ?
	`), t.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

func (t *Tx) GetAssignmentByName(ctx context.Context, name string) (*models.Assignment, error) {
	var assignment models.Assignment
	err := t.tx.GetContext(ctx, &assignment, t.q(`
		SELECT id, name, tenant_id, max_points, date, description, created_at, updated_at
		FROM assignments
		WHERE tenant_id = ? AND name = ?
	`), t.tenantID, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &assignment, nil
}

func (t *Tx) CreateAssignment(ctx context.Context, assignment *models.Assignment) error {
	now := time.Now().UTC()
	assignment.TenantID = t.tenantID
	assignment.CreatedAt, assignment.UpdatedAt = now, now

	err := t.tx.QueryRowxContext(ctx, t.q(`
		INSERT INTO assignments (name, tenant_id, max_points, date, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		assignment.Name,
		assignment.TenantID,
		assignment.MaxPoints,
		assignment.Date,
		assignment.Description,
		now,
		now,
	).Scan(&assignment.ID)
	return t.base.classify("failed to create assignment", err)
}

func (t *Tx) GetGrade(ctx context.Context, studentID, assignmentID int64) (*models.Grade, error) {
	var grade models.Grade
	err := t.tx.GetContext(ctx, &grade, t.q(`
		SELECT id, student_id, teacher_id, assignment_id, tenant_id, score, class_tag, comments, created_at, updated_at
		FROM grades
		WHERE tenant_id = ? AND student_id = ? AND assignment_id = ?
	`), t.tenantID, studentID, assignmentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grade: %w", err)
	}
	return &grade, nil
}

func (t *Tx) CreateGrade(ctx context.Context, grade *models.Grade) error {
	now := time.Now().UTC()
	grade.TenantID = t.tenantID
	grade.CreatedAt, grade.UpdatedAt = now, now

	err := t.tx.QueryRowxContext(ctx, t.q(`
		INSERT INTO grades (student_id, teacher_id, assignment_id, tenant_id, score, class_tag, comments, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		grade.StudentID,
		grade.TeacherID,
		grade.AssignmentID,
		grade.TenantID,
		grade.Score,
		grade.ClassTag,
		grade.Comments,
		now,
		now,
	).Scan(&grade.ID)
	return t.base.classify("failed to create grade", err)
}

// UpdateGrade overwrites score, teacher and class tag and bumps updated_at.
func (t *Tx) UpdateGrade(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, t.q(`
		UPDATE grades
		SET score = ?, teacher_id = ?, class_tag = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`), grade.Score, grade.TeacherID, grade.ClassTag, grade.UpdatedAt, grade.ID, t.tenantID)
	return t.base.classify("failed to update grade", err)
}

func (t *Tx) GetTagsByIDs(ctx context.Context, ids []int64) ([]models.Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT id, name, tenant_id
		FROM tags
		WHERE tenant_id = ? AND id IN (?)
		ORDER BY name
	`, t.tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build tag query: %w", err)
	}

	var tags []models.Tag
	if err := t.tx.SelectContext(ctx, &tags, t.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}
	return tags, nil
}

func (t *Tx) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	var tag models.Tag
	err := t.tx.GetContext(ctx, &tag, t.q(`
		SELECT id, name, tenant_id
		FROM tags
		WHERE tenant_id = ? AND name = ?
	`), t.tenantID, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &tag, nil
}

func (t *Tx) CreateTag(ctx context.Context, tag *models.Tag) error {
	tag.TenantID = t.tenantID
	err := t.tx.QueryRowxContext(ctx, t.q(`
		INSERT INTO tags (name, tenant_id)
		VALUES (?, ?)
		RETURNING id
	`), tag.Name, tag.TenantID).Scan(&tag.ID)
	return t.base.classify("failed to create tag", err)
}

func (t *Tx) AttachTag(ctx context.Context, assignmentID, tagID int64) error {
	_, err := t.tx.ExecContext(ctx, t.q(`
		INSERT INTO assignment_tags (assignment_id, tag_id)
		VALUES (?, ?)
		ON CONFLICT (assignment_id, tag_id) DO NOTHING
	`), assignmentID, tagID)
	return t.base.classify("failed to attach tag", err)
}
