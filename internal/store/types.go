package store

import (
	"database/sql"
	"errors"
	"time"
)

type DatabaseType string

const (
	DBTypePostgres DatabaseType = "postgres"
	DBTypeSQLite   DatabaseType = "sqlite"
)

type DBConfig struct {
	DSN           string
	Type          DatabaseType
	MigrationsDir string
}

// ErrDuplicateEntry is returned when a write hits one of the per-tenant
// unique constraints. Callers treat it as "someone else created it first".
var ErrDuplicateEntry = errors.New("duplicate entry")

// GradeRow is one grade joined with its student, assignment and teacher.
type GradeRow struct {
	GradeID        int64          `db:"grade_id"`
	StudentID      int64          `db:"student_id"`
	FirstName      string         `db:"first_name"`
	LastName       string         `db:"last_name"`
	Email          string         `db:"email"`
	AssignmentID   int64          `db:"assignment_id"`
	AssignmentName string         `db:"assignment_name"`
	AssignmentDate *time.Time     `db:"assignment_date"`
	MaxPoints      float64        `db:"max_points"`
	Score          float64        `db:"score"`
	ClassTag       sql.NullString `db:"class_tag"`
	TeacherName    string         `db:"teacher_name"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// AssignmentTag links a tag name to an assignment; loaded once per request
// and turned into a lookup map instead of walking relations per grade.
type AssignmentTag struct {
	AssignmentID int64  `db:"assignment_id"`
	TagID        int64  `db:"tag_id"`
	TagName      string `db:"tag_name"`
}

type TenantCounts struct {
	Students          int64   `db:"students" json:"students"`
	Assignments       int64   `db:"assignments" json:"assignments"`
	Teachers          int64   `db:"teachers" json:"teachers"`
	Grades            int64   `db:"grades" json:"grades"`
	Tags              int64   `db:"tags" json:"tags"`
	AveragePercentage float64 `db:"average_percentage" json:"average_percentage"`
}
