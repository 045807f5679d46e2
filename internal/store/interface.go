package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
)

type GradeStore interface {
	Close() error
	ApplyMigrations(dir string) error
	Ping(ctx context.Context) error

	GetOrCreateTenant(ctx context.Context, id, name string) (*models.Tenant, bool, error)
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)

	// BeginUpload opens the single transaction an upload writes through.
	BeginUpload(ctx context.Context, tenantID string) (UploadTx, error)

	GetStudentByEmail(ctx context.Context, tenantID, email string) (*models.Student, error)
	ListStudents(ctx context.Context, tenantID string) ([]models.Student, error)
	SearchStudents(ctx context.Context, tenantID, query string) ([]models.Student, error)
	ListAssignments(ctx context.Context, tenantID string) ([]models.Assignment, error)
	ListTags(ctx context.Context, tenantID string) ([]models.Tag, error)
	ListAssignmentTags(ctx context.Context, tenantID string) ([]AssignmentTag, error)
	ListGradeRows(ctx context.Context, tenantID string) ([]GradeRow, error)
	ListStudentGradeRows(ctx context.Context, tenantID string, studentID int64) ([]GradeRow, error)
	CountTenant(ctx context.Context, tenantID string) (*TenantCounts, error)
}

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB                *sqlx.DB
	Converter         func(string) string
	IsUniqueViolation func(error) bool
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

func (s *BaseStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// ApplyMigrations applies SQL migrations from a directory, translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Name(), err)
		}
	}

	return nil
}

// classify turns driver unique-constraint failures into ErrDuplicateEntry
// and wraps everything else with the failing operation.
func (s *BaseStore) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if s.IsUniqueViolation != nil && s.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrDuplicateEntry, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *BaseStore) GetOrCreateTenant(ctx context.Context, id, name string) (*models.Tenant, bool, error) {
	now := time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, s.Converter(`
		INSERT INTO tenants (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), id, name, now, now)
	if err != nil {
		return nil, false, s.classify("failed to create tenant", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	tenant, err := s.GetTenant(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if tenant == nil {
		return nil, false, fmt.Errorf("tenant %s vanished after insert", id)
	}
	return tenant, affected > 0, nil
}

func (s *BaseStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.DB.GetContext(ctx, &tenant, s.Converter(`
		SELECT id, name, created_at, updated_at
		FROM tenants
		WHERE id = ?
	`), id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

func (s *BaseStore) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := s.DB.SelectContext(ctx, &tenants, `
		SELECT id, name, created_at, updated_at
		FROM tenants
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

func (s *BaseStore) BeginUpload(ctx context.Context, tenantID string) (UploadTx, error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin upload transaction: %w", err)
	}
	return &Tx{tx: tx, base: s, tenantID: tenantID}, nil
}

func (s *BaseStore) GetStudentByEmail(ctx context.Context, tenantID, email string) (*models.Student, error) {
	var student models.Student
	err := s.DB.GetContext(ctx, &student, s.Converter(`
		SELECT id, first_name, last_name, email, tenant_id, created_at, updated_at
		FROM students
		WHERE tenant_id = ? AND email = ?
	`), tenantID, models.NormalizeEmail(email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &student, nil
}

func (s *BaseStore) ListStudents(ctx context.Context, tenantID string) ([]models.Student, error) {
	var students []models.Student
	err := s.DB.SelectContext(ctx, &students, s.Converter(`
		SELECT id, first_name, last_name, email, tenant_id, created_at, updated_at
		FROM students
		WHERE tenant_id = ?
		ORDER BY last_name, first_name, email
	`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

func (s *BaseStore) SearchStudents(ctx context.Context, tenantID, query string) ([]models.Student, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListStudents(ctx, tenantID)
	}

	pattern := "%" + strings.ToLower(query) + "%"
	var students []models.Student
	err := s.DB.SelectContext(ctx, &students, s.Converter(`
		SELECT id, first_name, last_name, email, tenant_id, created_at, updated_at
		FROM students
		WHERE tenant_id = ?
		AND (
			LOWER(first_name) LIKE ?
			OR LOWER(last_name) LIKE ?
			OR LOWER(email) LIKE ?
			OR LOWER(first_name || ' ' || last_name) LIKE ?
			OR LOWER(last_name || ', ' || first_name) LIKE ?
		)
		ORDER BY last_name, first_name, email
	`), tenantID, pattern, pattern, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search students: %w", err)
	}
	return students, nil
}

func (s *BaseStore) ListAssignments(ctx context.Context, tenantID string) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := s.DB.SelectContext(ctx, &assignments, s.Converter(`
		SELECT id, name, tenant_id, max_points, date, description, created_at, updated_at
		FROM assignments
		WHERE tenant_id = ?
		ORDER BY name
	`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

func (s *BaseStore) ListTags(ctx context.Context, tenantID string) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.DB.SelectContext(ctx, &tags, s.Converter(`
		SELECT id, name, tenant_id
		FROM tags
		WHERE tenant_id = ?
		ORDER BY name
	`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

func (s *BaseStore) ListAssignmentTags(ctx context.Context, tenantID string) ([]AssignmentTag, error) {
	var links []AssignmentTag
	err := s.DB.SelectContext(ctx, &links, s.Converter(`
		SELECT at.assignment_id, at.tag_id, t.name AS tag_name
		FROM assignment_tags at
		JOIN tags t ON t.id = at.tag_id
		JOIN assignments a ON a.id = at.assignment_id
		WHERE t.tenant_id = ? AND a.tenant_id = ?
		ORDER BY at.assignment_id, t.name
	`), tenantID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignment tags: %w", err)
	}
	return links, nil
}

const gradeRowsQuery = `
		SELECT
			g.id AS grade_id,
			s.id AS student_id,
			s.first_name,
			s.last_name,
			s.email,
			a.id AS assignment_id,
			a.name AS assignment_name,
			a.date AS assignment_date,
			a.max_points,
			g.score,
			g.class_tag,
			t.name AS teacher_name,
			g.updated_at
		FROM grades g
		JOIN students s ON s.id = g.student_id AND s.tenant_id = g.tenant_id
		JOIN assignments a ON a.id = g.assignment_id AND a.tenant_id = g.tenant_id
		JOIN teachers t ON t.id = g.teacher_id AND t.tenant_id = g.tenant_id
		WHERE g.tenant_id = ?`

func (s *BaseStore) ListGradeRows(ctx context.Context, tenantID string) ([]GradeRow, error) {
	var rows []GradeRow
	err := s.DB.SelectContext(ctx, &rows, s.Converter(gradeRowsQuery+`
		ORDER BY s.last_name, s.first_name, s.email, a.name
	`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grades: %w", err)
	}
	return rows, nil
}

func (s *BaseStore) ListStudentGradeRows(ctx context.Context, tenantID string, studentID int64) ([]GradeRow, error) {
	var rows []GradeRow
	err := s.DB.SelectContext(ctx, &rows, s.Converter(gradeRowsQuery+`
		AND g.student_id = ?
		ORDER BY a.name
	`), tenantID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list student grades: %w", err)
	}
	return rows, nil
}

func (s *BaseStore) CountTenant(ctx context.Context, tenantID string) (*TenantCounts, error) {
	var counts TenantCounts
	err := s.DB.GetContext(ctx, &counts, s.Converter(`
		SELECT
			(SELECT COUNT(*) FROM students WHERE tenant_id = ?) AS students,
			(SELECT COUNT(*) FROM assignments WHERE tenant_id = ?) AS assignments,
			(SELECT COUNT(*) FROM teachers WHERE tenant_id = ?) AS teachers,
			(SELECT COUNT(*) FROM grades WHERE tenant_id = ?) AS grades,
			(SELECT COUNT(*) FROM tags WHERE tenant_id = ?) AS tags,
			COALESCE((
				SELECT AVG(g.score * 100.0 / a.max_points)
				FROM grades g
				JOIN assignments a ON a.id = g.assignment_id
				WHERE g.tenant_id = ? AND a.tenant_id = ?
			), 0) AS average_percentage
	`), tenantID, tenantID, tenantID, tenantID, tenantID, tenantID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tenant data: %w", err)
	}
	return &counts, nil
}
