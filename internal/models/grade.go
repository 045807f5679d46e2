package models

import (
	"database/sql"
	"time"
)

type Grade struct {
	ID           int64          `db:"id" json:"id"`
	StudentID    int64          `db:"student_id" json:"student_id"`
	TeacherID    int64          `db:"teacher_id" json:"teacher_id"`
	AssignmentID int64          `db:"assignment_id" json:"assignment_id"`
	TenantID     string         `db:"tenant_id" json:"-"`
	Score        float64        `db:"score" json:"score" validate:"gte=0"`
	ClassTag     sql.NullString `db:"class_tag" json:"-"`
	Comments     sql.NullString `db:"comments" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// unique_together is enforced on DB level:
/*
CONSTRAINT uq_student_assignment_tenant UNIQUE (student_id, assignment_id, tenant_id)
*/

// Percentage is the score relative to max points, 0 when max is not positive.
func Percentage(score, maxPoints float64) float64 {
	if maxPoints <= 0 {
		return 0
	}
	return score / maxPoints * 100
}
